package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection backing the per-session cache (trovia.db).
type DB struct {
	*sql.DB
}

// Open creates the cache connection. WAL keeps reads from the API services
// from blocking the aggregator's snapshot swaps; NORMAL sync is enough for a
// cache the daemon can rebuild from the backend.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: SQLite allows a single writer and the busy timeout
	// covers the rest.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
