// Package browser runs the read paths of the panel: table listing, bounded
// table previews and free-form statements. Every call opens its own session
// and closes it before returning, so a failure never leaks into the next call.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/db/queries"
	"github.com/willibrandon/dbpanel/internal/logger"
)

// ErrTableNotFound indicates the table has no visible columns, either
// because it does not exist or because the user cannot see it.
var ErrTableNotFound = errors.New("table not found")

// UnknownType is reported for result columns whose type is not known.
const UnknownType = "unknown"

// Browser issues read queries through a db.Client.
type Browser struct {
	client db.Client
}

// New creates a Browser.
func New(client db.Client) *Browser {
	return &Browser{client: client}
}

// ListTables returns every user table of the profile's database ordered by
// schema then name.
func (b *Browser) ListTables(ctx context.Context, profile models.ConnectionProfile) ([]models.TableDescriptor, error) {
	var tables []models.TableDescriptor
	err := db.WithSession(ctx, b.client, profile.Params(), func(sess db.Session) error {
		var err error
		tables, err = queries.ListTables(ctx, sess)
		return err
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

// LoadTableData reads column metadata, the exact row count and the first
// models.PageSize rows of schema.table on one session. If any of the three
// queries fails the whole call fails.
func (b *Browser) LoadTableData(ctx context.Context, profile models.ConnectionProfile, schema, table string) (*models.TableData, error) {
	log := logger.With("connection_id", profile.ID, "schema", schema, "table", table)
	log.Debug("Loading table data")

	var data *models.TableData
	err := db.WithSession(ctx, b.client, profile.Params(), func(sess db.Session) error {
		cols, err := queries.ListColumns(ctx, sess, schema, table)
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("%w: %s.%s", ErrTableNotFound, schema, table)
		}

		total, err := queries.CountRows(ctx, sess, schema, table)
		if err != nil {
			return err
		}

		res, err := queries.FetchRows(ctx, sess, schema, table, models.PageSize)
		if err != nil {
			return err
		}

		data = &models.TableData{
			Schema:      schema,
			TableName:   table,
			Columns:     cols,
			Rows:        res.Rows,
			TotalRows:   total,
			CurrentPage: 1,
			PageSize:    models.PageSize,
		}
		return nil
	})
	if err != nil {
		log.Warn("Failed to load table data", "error", err)
		return nil, err
	}

	log.Debug("Loaded table data", "rows", len(data.Rows), "total_rows", data.TotalRows)
	return data, nil
}

// ExecuteQuery runs sql verbatim. Columns carry the server type name when it
// is known and UnknownType otherwise; every column is reported nullable and
// without key flags.
func (b *Browser) ExecuteQuery(ctx context.Context, profile models.ConnectionProfile, sql string) (*models.QueryResult, error) {
	var result *models.QueryResult
	err := db.WithSession(ctx, b.client, profile.Params(), func(sess db.Session) error {
		res, err := sess.Query(ctx, sql)
		if err != nil {
			return err
		}

		cols := make([]models.Column, len(res.Fields))
		for i, f := range res.Fields {
			typeName := f.TypeName
			if typeName == "" {
				typeName = UnknownType
			}
			cols[i] = models.Column{Name: f.Name, Type: typeName, Nullable: true}
		}

		rows := res.Rows
		if rows == nil {
			rows = [][]any{}
		}
		result = &models.QueryResult{
			Columns:  cols,
			Rows:     rows,
			RowCount: res.RowCount,
		}
		return nil
	})
	if err != nil {
		logger.Warn("Query failed", "connection_id", profile.ID, "error", err)
		return nil, err
	}
	return result, nil
}
