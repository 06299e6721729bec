// Package db defines the database client contract used by the registry and
// the query surface, and its pgx implementation. Every operation runs on its
// own short-lived session; nothing is pooled.
package db

import (
	"context"

	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/logger"
)

// Client opens sessions against a database server.
type Client interface {
	Connect(ctx context.Context, params models.ConnectionParams) (Session, error)
}

// Session is a single open link to the server.
type Session interface {
	// Query runs sql and collects every row. Without args the text goes
	// over the simple protocol, so it may hold several statements; the rows
	// are those of the first, and an error in any statement fails the call.
	Query(ctx context.Context, sql string, args ...any) (*Result, error)
	// Close ends the session.
	Close(ctx context.Context) error
}

// Field describes one result column.
type Field struct {
	Name     string
	TypeOID  uint32
	TypeName string
}

// Result holds the fields, rows and affected-row count of a statement.
type Result struct {
	Fields   []Field
	Rows     [][]any
	RowCount int64
}

// FieldNames returns the names of the result fields in order.
func (r *Result) FieldNames() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// TestConnection opens a session and immediately closes it.
func TestConnection(ctx context.Context, client Client, params models.ConnectionParams) error {
	sess, err := client.Connect(ctx, params)
	if err != nil {
		return err
	}
	if err := sess.Close(ctx); err != nil {
		logger.Warn("Failed to close test session", "target", params.String(), "error", err)
	}
	return nil
}

// WithSession opens a session, runs fn and closes the session whatever fn
// returns. A failed close after a successful fn is logged, not returned, so
// results already read are never discarded.
func WithSession(ctx context.Context, client Client, params models.ConnectionParams, fn func(Session) error) error {
	sess, err := client.Connect(ctx, params)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil {
			logger.Warn("Failed to close session", "target", params.String(), "error", cerr)
		}
	}()
	return fn(sess)
}
