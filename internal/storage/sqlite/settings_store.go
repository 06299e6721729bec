package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/willibrandon/dbpanel/internal/storage"
)

// SettingsStore implements storage.Store over the settings table.
type SettingsStore struct {
	db *DB
}

var _ storage.Store = (*SettingsStore)(nil)

// NewSettingsStore creates a SettingsStore.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value for key, or def when no row exists.
func (s *SettingsStore) Get(ctx context.Context, key string, def []byte) ([]byte, error) {
	var value []byte
	err := s.db.conn.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get", Key: key, Err: err}
	}
	return value, nil
}

// Set upserts the value for key.
func (s *SettingsStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return &storage.PersistenceError{Op: "set", Key: key, Err: err}
	}
	return nil
}
