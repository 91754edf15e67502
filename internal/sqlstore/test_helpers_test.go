package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// openTestDB opens a fresh store under t.TempDir.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// inTx runs fn inside a committed transaction.
func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) {
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

// countRows returns the row count of table.
func countRows(t *testing.T, db *sql.DB, table string) int64 {
	t.Helper()
	var count int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
		t.Fatalf("count rows of %s: %v", table, err)
	}
	return count
}
