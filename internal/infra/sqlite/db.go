// Package sqlite provides the persistent hold-session ledger for gpuhold.
// Uses WAL mode for concurrent reads and crash-safe writes. The ledger is an
// audit log, not recovery state: nothing is replayed at launch.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/ledger.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "ledger.db")
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS hold_sessions (
			id          TEXT PRIMARY KEY,
			device      INTEGER NOT NULL,
			generation  INTEGER NOT NULL,
			held_bytes  INTEGER NOT NULL,
			acquired_at INTEGER NOT NULL,
			released_at INTEGER,
			reason      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_device ON hold_sessions(device)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_acquired ON hold_sessions(acquired_at)`,

		`CREATE TABLE IF NOT EXISTS device_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			device    INTEGER NOT NULL,
			kind      TEXT NOT NULL,
			detail    TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_device ON device_events(device)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON device_events(timestamp)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}
