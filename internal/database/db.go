package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// sqlite connection options shared with the migration runner. busy_timeout
// keeps the sweep loop and synchronous callers from tripping over each other
// on the single writer.
const dsnOptions = "_foreign_keys=on&_busy_timeout=5000"

// Open returns a handle configured for this service's single-writer usage.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", path, dsnOptions))
	if err != nil {
		return nil, err
	}
	// one connection: sqlite serializes writers anyway, and a single conn
	// keeps transactions from deadlocking against the pool
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	return db, nil
}

// WithTx runs fn inside a transaction, rolling back when fn errors.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Now returns UTC truncated to whole seconds, matching sqlite's
// CURRENT_TIMESTAMP resolution so stored and computed times compare cleanly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
