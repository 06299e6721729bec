package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/willibrandon/dbpanel/internal/history"
	"github.com/willibrandon/dbpanel/internal/logger"
	"github.com/willibrandon/dbpanel/internal/storage"
)

// HistoryStore keeps per-connection query history in SQLite.
type HistoryStore struct {
	db *DB
}

var _ history.Store = (*HistoryStore)(nil)

// NewHistoryStore creates a new history store.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Add records e. If the connection already has an entry with the same
// fingerprint, that entry is updated and moves to the top.
func (s *HistoryStore) Add(ctx context.Context, e history.Entry) error {
	sqlText := strings.TrimSpace(e.SQL)
	if sqlText == "" {
		return nil
	}

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO query_history (connection_id, fingerprint, query, executed_at, duration_ms, row_count, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id, fingerprint) DO UPDATE SET
			query = excluded.query,
			executed_at = excluded.executed_at,
			duration_ms = excluded.duration_ms,
			row_count = excluded.row_count,
			error = excluded.error
	`, e.ConnectionID, history.Fingerprint(sqlText), sqlText, e.ExecutedAt, e.DurationMs, e.RowCount, e.Error)
	if err != nil {
		return &storage.PersistenceError{Op: "set", Key: "query_history", Err: err}
	}

	// Keep the newest entries per connection
	if _, err := s.db.conn.ExecContext(ctx, `
		DELETE FROM query_history
		WHERE connection_id = ? AND id NOT IN (
			SELECT id FROM query_history
			WHERE connection_id = ?
			ORDER BY executed_at DESC
			LIMIT ?
		)
	`, e.ConnectionID, e.ConnectionID, history.MaxEntries); err != nil {
		logger.Warn("Failed to trim query history", "connection_id", e.ConnectionID, "error", err)
	}

	return nil
}

// likeEscaper makes a search string match itself literally in a LIKE
// pattern with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Recent returns the newest entries of a connection, optionally filtered by
// a case-insensitive substring of the SQL.
func (s *HistoryStore) Recent(ctx context.Context, connectionID, search string, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		limit = history.DefaultLimit
	}

	var rows *sql.Rows
	var err error

	if search == "" {
		rows, err = s.db.conn.QueryContext(ctx, `
			SELECT id, connection_id, query, executed_at, duration_ms, row_count, error
			FROM query_history
			WHERE connection_id = ?
			ORDER BY executed_at DESC, id DESC
			LIMIT ?
		`, connectionID, limit)
	} else {
		rows, err = s.db.conn.QueryContext(ctx, `
			SELECT id, connection_id, query, executed_at, duration_ms, row_count, error
			FROM query_history
			WHERE connection_id = ? AND query LIKE ? ESCAPE '\'
			ORDER BY executed_at DESC, id DESC
			LIMIT ?
		`, connectionID, "%"+likeEscaper.Replace(search)+"%", limit)
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get", Key: "query_history", Err: err}
	}
	defer rows.Close()

	entries := []history.Entry{}
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(&e.ID, &e.ConnectionID, &e.SQL, &e.ExecutedAt, &e.DurationMs, &e.RowCount, &e.Error); err != nil {
			return nil, &storage.PersistenceError{Op: "get", Key: "query_history", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &storage.PersistenceError{Op: "get", Key: "query_history", Err: err}
	}
	return entries, nil
}

// Clear drops every entry of a connection.
func (s *HistoryStore) Clear(ctx context.Context, connectionID string) error {
	if _, err := s.db.conn.ExecContext(ctx, `DELETE FROM query_history WHERE connection_id = ?`, connectionID); err != nil {
		return &storage.PersistenceError{Op: "set", Key: "query_history", Err: err}
	}
	return nil
}
