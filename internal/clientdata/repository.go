// Package clientdata provides persistent caching for external API client
// responses. All data is stored as JSON blobs with expiration timestamps for
// cache-first behavior. Stale rows are never deleted eagerly; they are
// ignored on lookup and superseded on the next successful refresh.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AllTables lists all tables in the cache database.
var AllTables = []string{
	"weather",
	"market",
	"soil",
	"market_history",
}

// validTables is a set for O(1) table name validation.
var validTables = func() map[string]bool {
	m := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		m[t] = true
	}
	return m
}()

// Schema creates the cache tables. Every table shares the same shape:
// source-specific key, JSON payload, unix expiry.
const Schema = `
CREATE TABLE IF NOT EXISTS weather (key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS market (key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS soil (key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS market_history (key TEXT PRIMARY KEY, data TEXT NOT NULL, expires_at INTEGER NOT NULL);

CREATE INDEX IF NOT EXISTS idx_weather_expires ON weather(expires_at);
CREATE INDEX IF NOT EXISTS idx_market_expires ON market(expires_at);
CREATE INDEX IF NOT EXISTS idx_soil_expires ON soil(expires_at);
CREATE INDEX IF NOT EXISTS idx_market_history_expires ON market_history(expires_at);
`

// Repository provides cache operations for collector payloads.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InitSchema creates the cache tables if they do not exist.
func (r *Repository) InitSchema() error {
	if _, err := r.db.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return nil
}

// validateTable ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func validateTable(table string) error {
	if !validTables[table] {
		return fmt.Errorf("invalid table name: %s", table)
	}
	return nil
}

// Store saves data with expiration = now + ttl.
// Uses INSERT OR REPLACE so a refresh supersedes the previous entry.
func (r *Repository) Store(table, key string, data interface{}, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (key, data, expires_at) VALUES (?, ?, ?)",
		table,
	)
	if _, err := r.db.Exec(query, key, string(jsonData), expiresAt); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}
	return nil
}

// GetIfFresh returns data only if expires_at > now, nil otherwise.
// Returns nil, nil if the key doesn't exist or data is expired.
// Use Get() to retrieve stale data as a fallback when API calls fail.
func (r *Repository) GetIfFresh(table, key string) (json.RawMessage, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	query := fmt.Sprintf("SELECT data FROM %s WHERE key = ? AND expires_at > ?", table)

	var data string
	err := r.db.QueryRow(query, key, now).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", table, err)
	}
	return json.RawMessage(data), nil
}

// Get returns data regardless of expiration status.
// Use this as a fallback when API calls fail - stale data is better than no data.
// Returns nil, nil if the key doesn't exist.
func (r *Repository) Get(table, key string) (json.RawMessage, error) {
	if err := validateTable(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE key = ?", table)

	var data string
	err := r.db.QueryRow(query, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", table, err)
	}
	return json.RawMessage(data), nil
}

// CleanupExpired deletes rows expired for longer than the grace period.
// Called from the maintenance job, never from the fetch path (lazy expiry).
func (r *Repository) CleanupExpired(grace time.Duration) (int64, error) {
	cutoff := time.Now().Add(-grace).Unix()
	var total int64
	for _, table := range AllTables {
		query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)
		res, err := r.db.Exec(query, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to clean up %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
