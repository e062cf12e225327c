package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_CreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	db, err := New(Config{Path: filepath.Join(dir, "sub", "universe.db"), Name: "universe"})
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, "universe", db.Name())
	assert.FileExists(t, db.Path())
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "u.db"), Name: "universe"})
	require.NoError(t, err)
	defer db.Close()

	schema := `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`
	require.NoError(t, db.Migrate(context.Background(), schema))
	require.NoError(t, db.Migrate(context.Background(), schema))

	_, err = db.ExecContext(context.Background(), "INSERT INTO kv(key, value) VALUES (?, ?)", "k", "v")
	require.NoError(t, err)

	var value string
	err = db.QueryRowContext(context.Background(), "SELECT value FROM kv WHERE key = ?", "k").Scan(&value)
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestHealthCheck_OK(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "h.db"), Name: "universe"})
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.HealthCheck(context.Background()))
}
