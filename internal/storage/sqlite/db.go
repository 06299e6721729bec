// Package sqlite provides the SQLite-backed settings and query history stores.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the local state database shared by SettingsStore and HistoryStore.
type DB struct {
	conn *sql.DB
}

// dsn appends the connection options every handle needs. WAL lets a CLI
// invocation read while `dbpanel serve` writes; _loc=auto returns DATETIME
// columns as local time.Time values.
func dsn(path string) string {
	opts := url.Values{}
	opts.Set("_journal_mode", "WAL")
	opts.Set("_busy_timeout", "5000")
	opts.Set("_foreign_keys", "on")
	opts.Set("_loc", "auto")
	return path + "?" + opts.Encode()
}

// Open opens the database at path, creating it and its directory if needed,
// and applies the schema.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema in %s: %w", path, err)
	}
	return db, nil
}

// WrapConn adopts an already open handle without applying the schema. The
// caller keeps ownership of conn.
func WrapConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}
