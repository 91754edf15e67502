// Package testutil provides shared helpers for tests that need a real
// SQLite-backed store.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/roach88/chainstore/internal/sqlstore"
)

// OpenTestDB opens a fresh on-disk store under t.TempDir and closes it when
// the test finishes.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlstore.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close test db: %v", err)
		}
	})
	return db
}

// InTx runs fn inside a transaction and commits it, failing the test on any
// error.
func InTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		t.Fatalf("tx func: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit tx: %v", err)
	}
}

// CountRows returns the row count of a table.
func CountRows(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()
	var count int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		t.Fatalf("count rows of %s: %v", table, err)
	}
	return count
}
