// Package database provides the sqlite connection wrapper used by the
// symbol universe store (C3).
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// Profile selects a PRAGMA set tuned for a database's access pattern.
type Profile string

const (
	// ProfileDurable favors safety: fsync at checkpoints, no auto-vacuum.
	// Used for the symbol universe.
	ProfileDurable Profile = "durable"
	// ProfileCache favors speed over durability for ephemeral data.
	ProfileCache Profile = "cache"
)

// DB wraps a sqlite connection with a PRAGMA profile applied.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Config holds database connection parameters.
type Config struct {
	Path    string
	Profile Profile
	Name    string
}

// New opens (creating if necessary) a sqlite database at cfg.Path.
func New(cfg Config) (*DB, error) {
	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileDurable
	}

	conn, err := sql.Open("sqlite", buildConnectionString(absPath, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Name, err)
	}
	configureConnectionPool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: absPath, profile: cfg.Profile, name: cfg.Name}, nil
}

func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=cache_size(-16000)"
	switch profile {
	case ProfileCache:
		connStr += "&_pragma=synchronous(OFF)&_pragma=temp_store(MEMORY)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"
	}
	return connStr
}

func configureConnectionPool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(1 * time.Hour)
	conn.SetConnMaxIdleTime(10 * time.Minute)
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn returns the underlying *sql.DB for repositories that need raw access.
func (db *DB) Conn() *sql.DB { return db.conn }

// Name returns the friendly database name used in logs.
func (db *DB) Name() string { return db.name }

// Path returns the absolute database file path.
func (db *DB) Path() string { return db.path }

// ExecContext executes a statement that returns no rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a statement that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a statement that returns at most one row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// Migrate runs schema DDL idempotently (CREATE TABLE IF NOT EXISTS style).
func (db *DB) Migrate(ctx context.Context, schema string) error {
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate %s: %w", db.name, err)
	}
	return nil
}

// HealthCheck pings the connection and runs a quick integrity check.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}
	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick_check failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("quick_check failed for %s: %s", db.name, result)
	}
	return nil
}
