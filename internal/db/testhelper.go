package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

// OpenTestSQLite opens a hardened SQLite write/read pool pair in t.TempDir(),
// applies the catalogue migrations on the write pool, and registers cleanup.
// It returns the pools and the database file path.
func OpenTestSQLite(t *testing.T) (writeDB, readDB *sql.DB, path string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "catalogue.sqlite")

	writeDB, readDB, err := OpenSQLitePair(path, DefaultReadPoolSize)
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = readDB.Close()
		_ = writeDB.Close()
	})

	if err := RunMigrations(context.Background(), writeDB); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return writeDB, readDB, path
}
