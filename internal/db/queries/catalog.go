// Package queries provides the catalog and table queries run on a db.Session.
package queries

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
)

// SystemSchemas are never listed by ListTables.
var SystemSchemas = []string{"pg_catalog", "information_schema", "pg_toast"}

// ErrUnexpectedShape indicates a catalog query returned rows in a form the
// caller cannot read.
var ErrUnexpectedShape = errors.New("unexpected result shape")

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ListTablesStatement returns the catalog listing query, ordered by schema
// then name using byte-wise collation.
func ListTablesStatement() (string, []any, error) {
	return psql.
		Select("table_schema", "table_name").
		From("information_schema.tables").
		Where(sq.NotEq{"table_schema": SystemSchemas}).
		OrderBy(`table_schema COLLATE "C"`, `table_name COLLATE "C"`).
		ToSql()
}

// ListTables returns every user table visible to the session.
func ListTables(ctx context.Context, sess db.Session) ([]models.TableDescriptor, error) {
	query, args, err := ListTablesStatement()
	if err != nil {
		return nil, fmt.Errorf("build table listing: %w", err)
	}

	res, err := sess.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	tables := make([]models.TableDescriptor, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 2 {
			return nil, ErrUnexpectedShape
		}
		tables = append(tables, models.TableDescriptor{
			Schema: asString(row[0]),
			Name:   asString(row[1]),
		})
	}
	return tables, nil
}

// columnsSQL lists a table's columns with primary and foreign key membership
// derived from the information_schema constraint views.
const columnsSQL = `
SELECT
	c.column_name,
	c.data_type,
	c.is_nullable = 'YES' AS nullable,
	c.column_default,
	EXISTS (
		SELECT 1
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
			AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = c.table_schema
			AND tc.table_name = c.table_name
			AND kcu.column_name = c.column_name
	) AS is_primary_key,
	EXISTS (
		SELECT 1
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON kcu.constraint_schema = tc.constraint_schema
			AND kcu.constraint_name = tc.constraint_name
			AND kcu.table_schema = tc.table_schema
			AND kcu.table_name = tc.table_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = c.table_schema
			AND tc.table_name = c.table_name
			AND kcu.column_name = c.column_name
	) AS is_foreign_key
FROM information_schema.columns c
WHERE c.table_schema = $1 AND c.table_name = $2
ORDER BY c.ordinal_position`

// ListColumns returns column metadata for schema.table in ordinal order.
// An unknown table yields an empty slice.
func ListColumns(ctx context.Context, sess db.Session, schema, table string) ([]models.Column, error) {
	res, err := sess.Query(ctx, columnsSQL, schema, table)
	if err != nil {
		return nil, err
	}

	cols := make([]models.Column, 0, len(res.Rows))
	for _, row := range res.Rows {
		if len(row) < 6 {
			return nil, ErrUnexpectedShape
		}
		col := models.Column{
			Name:         asString(row[0]),
			Type:         asString(row[1]),
			Nullable:     asBool(row[2]),
			IsPrimaryKey: asBool(row[4]),
			IsForeignKey: asBool(row[5]),
		}
		if row[3] != nil {
			def := asString(row[3])
			col.DefaultValue = &def
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// tableName returns the quoted "schema"."table" identifier.
func tableName(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}

// CountStatement returns SELECT COUNT(*) for schema.table.
func CountStatement(schema, table string) (string, []any, error) {
	return psql.Select("COUNT(*)").From(tableName(schema, table)).ToSql()
}

// CountRows returns the exact row count of schema.table.
func CountRows(ctx context.Context, sess db.Session, schema, table string) (int64, error) {
	query, args, err := CountStatement(schema, table)
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	res, err := sess.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if len(res.Rows) != 1 || len(res.Rows[0]) != 1 {
		return 0, ErrUnexpectedShape
	}
	n, ok := asInt64(res.Rows[0][0])
	if !ok {
		return 0, ErrUnexpectedShape
	}
	return n, nil
}

// RowsStatement returns SELECT * for schema.table capped at limit rows.
func RowsStatement(schema, table string, limit int) (string, []any, error) {
	return psql.Select("*").From(tableName(schema, table)).Limit(uint64(limit)).ToSql()
}

// FetchRows returns at most limit rows of schema.table in server order.
func FetchRows(ctx context.Context, sess db.Session, schema, table string, limit int) (*db.Result, error) {
	query, args, err := RowsStatement(schema, table, limit)
	if err != nil {
		return nil, fmt.Errorf("build row fetch: %w", err)
	}
	return sess.Query(ctx, query, args...)
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	}
	return 0, false
}
