package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	write := buildDSN("/tmp/cat.sqlite", ModeWrite)
	assert.True(t, strings.HasPrefix(write, "/tmp/cat.sqlite?"))
	assert.Contains(t, write, "_journal_mode=WAL")
	assert.Contains(t, write, "_busy_timeout=5000")
	assert.Contains(t, write, "_foreign_keys=on")
	assert.Contains(t, write, "_txlock=immediate")

	read := buildDSN("/tmp/cat.sqlite", ModeRead)
	assert.Contains(t, read, "_synchronous=NORMAL")
	assert.NotContains(t, read, "_txlock")
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "cat.db"), Mode("invalid"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/cat.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")
}

func TestOpenSQLitePair_PoolSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.db")

	writeDB, readDB, err := OpenSQLitePair(path, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		writeDB.Close()
		readDB.Close()
	})

	assert.Equal(t, 1, writeDB.Stats().MaxOpenConnections)
	assert.Equal(t, DefaultReadPoolSize, readDB.Stats().MaxOpenConnections)

	var fk int
	require.NoError(t, writeDB.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var journal string
	require.NoError(t, readDB.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", strings.ToLower(journal))
}

func TestRunMigrations_CreatesCatalogueTables(t *testing.T) {
	writeDB, readDB, _ := OpenTestSQLite(t)

	for _, table := range []string{"sys_tables", "sys_schemas"} {
		var name string
		err := readDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	// Re-running on an up-to-date store is a no-op.
	require.NoError(t, RunMigrations(context.Background(), writeDB))
}

func TestRunMigrations_ForeignKeyEnforced(t *testing.T) {
	writeDB, _, _ := OpenTestSQLite(t)

	_, err := writeDB.Exec(`INSERT INTO sys_tables (table_name, schema_id) VALUES ('orphan', 999)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestOpenSQLitePair_ConcurrentReads(t *testing.T) {
	writeDB, readDB, _ := OpenTestSQLite(t)

	for i := 0; i < 20; i++ {
		_, err := writeDB.Exec(`INSERT INTO sys_schemas (schema_bin, table_name) VALUES (x'00', ?)`, "t"+string(rune('a'+i)))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var count int
			errs[idx] = readDB.QueryRow("SELECT count(*) FROM sys_schemas").Scan(&count)
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		assert.NoError(t, e, "reader %d failed", i)
	}
}

func TestRemoveSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cat.db")
	writeDB, readDB, err := OpenSQLitePair(path, 1)
	require.NoError(t, err)
	require.NoError(t, RunMigrations(context.Background(), writeDB))
	require.NoError(t, readDB.Close())
	require.NoError(t, writeDB.Close())

	require.NoError(t, RemoveSQLite(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Removing again is not an error.
	require.NoError(t, RemoveSQLite(path))
}
