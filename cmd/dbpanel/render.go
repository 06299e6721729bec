package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/history"
	"github.com/xlab/treeprint"
)

// nullDisplay is shown for NULL cells.
const nullDisplay = "NULL"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderConnections(w io.Writer, conns []models.ConnectionSummary) {
	if len(conns) == 0 {
		fmt.Fprintln(w, "No saved connections. Add one with: dbpanel conn add")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Target", "SSL", "Auth", "ID"})
	for _, c := range conns {
		auth := "none"
		switch {
		case c.PasswordCommand:
			auth = "command"
		case c.HasPassword:
			auth = "stored"
		}
		t.AppendRow(table.Row{c.Name, fmt.Sprintf("%s@%s:%d/%s", c.Username, c.Host, c.Port, c.Database), c.SSL, auth, c.ID})
	}
	t.Render()
}

// renderTableTree returns connection -> schema -> table as a tree.
func renderTableTree(conn models.ConnectionSummary, tables []models.TableDescriptor) string {
	tree := treeprint.NewWithRoot(fmt.Sprintf("%s (%s)", conn.Name, conn.Database))
	if len(tables) == 0 {
		tree.AddNode("(no tables)")
		return tree.String()
	}

	var branch treeprint.Tree
	current := ""
	for _, tbl := range tables {
		if branch == nil || tbl.Schema != current {
			current = tbl.Schema
			branch = tree.AddBranch(tbl.Schema)
		}
		branch.AddNode(tbl.Name)
	}
	return tree.String()
}

func renderTableData(w io.Writer, data *models.TableData) {
	t := newTable(w)
	header := make(table.Row, len(data.Columns))
	for i, c := range data.Columns {
		label := c.Name
		if c.IsPrimaryKey {
			label += " (PK)"
		} else if c.IsForeignKey {
			label += " (FK)"
		}
		header[i] = label
	}
	t.AppendHeader(header)
	appendRows(t, data.Rows)
	t.Render()

	fmt.Fprintf(w, "%s: showing %s of %s rows\n",
		models.TableDescriptor{Schema: data.Schema, Name: data.TableName}.QualifiedName(),
		humanize.Comma(int64(len(data.Rows))),
		humanize.Comma(data.TotalRows))
}

func renderQueryResult(w io.Writer, res *models.QueryResult) {
	if len(res.Columns) == 0 {
		fmt.Fprintf(w, "OK, %s rows affected\n", humanize.Comma(res.RowCount))
		return
	}

	t := newTable(w)
	header := make(table.Row, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c.Name
	}
	t.AppendHeader(header)
	appendRows(t, res.Rows)
	t.Render()
	fmt.Fprintf(w, "(%s rows)\n", humanize.Comma(res.RowCount))
}

// historySQLWidth truncates long statements in the history listing.
const historySQLWidth = 80

func renderHistory(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No query history.")
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"When", "Duration", "Rows", "SQL", "Error"})
	for _, e := range entries {
		sql := strings.Join(strings.Fields(e.SQL), " ")
		if len(sql) > historySQLWidth {
			sql = sql[:historySQLWidth-3] + "..."
		}
		t.AppendRow(table.Row{
			humanize.Time(e.ExecutedAt),
			fmt.Sprintf("%dms", e.DurationMs),
			humanize.Comma(e.RowCount),
			sql,
			e.Error,
		})
	}
	t.Render()
}

func appendRows(t table.Writer, rows [][]any) {
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			if s, ok := db.FormatValue(v); ok {
				r[i] = s
			} else {
				r[i] = nullDisplay
			}
		}
		t.AppendRow(r)
	}
}
