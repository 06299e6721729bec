package sqlite

// initSchema creates the database schema if it doesn't exist.
func (db *DB) initSchema() error {
	schema := `
	-- Key-value settings, one row per key
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Statements run through query.execute, deduplicated by fingerprint
	CREATE TABLE IF NOT EXISTS query_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		connection_id TEXT NOT NULL,
		fingerprint INTEGER NOT NULL,
		query TEXT NOT NULL,
		executed_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		row_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		UNIQUE (connection_id, fingerprint)
	);
	CREATE INDEX IF NOT EXISTS idx_query_history_recent
		ON query_history(connection_id, executed_at DESC);
	`

	_, err := db.conn.Exec(schema)
	return err
}
