// Package models contains data structures shared by the registry, the table
// cache and the query surface.
package models

// PageSize is the fixed number of rows fetched for a table preview.
const PageSize = 200

// TableDescriptor identifies one table within a connection's database.
type TableDescriptor struct {
	Schema string `json:"schema"`
	Name   string `json:"name"`
}

// QualifiedName returns schema.name.
func (t TableDescriptor) QualifiedName() string {
	return t.Schema + "." + t.Name
}

// Column describes a result or table column.
type Column struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Nullable     bool    `json:"nullable"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	IsForeignKey bool    `json:"is_foreign_key"`
	DefaultValue *string `json:"default_value,omitempty"`
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// TableData is a bounded preview of one table.
type TableData struct {
	Schema      string   `json:"schema"`
	TableName   string   `json:"table_name"`
	Columns     []Column `json:"columns"`
	Rows        [][]any  `json:"rows"`
	TotalRows   int64    `json:"total_rows"`
	CurrentPage int      `json:"current_page"`
	PageSize    int      `json:"page_size"`
}

// QueryResult is the outcome of a free-form statement.
type QueryResult struct {
	Columns  []Column `json:"columns"`
	Rows     [][]any  `json:"rows"`
	RowCount int64    `json:"row_count"`
}
