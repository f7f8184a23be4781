// Package database provides database connection and initialization functionality.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection with cache-appropriate configuration.
type DB struct {
	conn *sql.DB
	path string
	name string
}

// Config holds database configuration
type Config struct {
	Path string
	Name string // Friendly name for logging (e.g., "client_data")
}

// New creates a new database connection configured for ephemeral cache data:
// WAL journaling, normal synchronous mode, busy timeout for concurrent
// collectors.
func New(cfg Config) (*DB, error) {
	path := cfg.Path
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		path = absPath
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q on %s: %w", pragma, cfg.Name, err)
		}
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	return &DB{conn: conn, path: path, name: cfg.Name}, nil
}

// Conn returns the underlying sql.DB.
func (d *DB) Conn() *sql.DB { return d.conn }

// Name returns the friendly database name.
func (d *DB) Name() string { return d.name }

// Close closes the connection.
func (d *DB) Close() error { return d.conn.Close() }
