// Package sqlite provides a durable storage.Store backed by a single-table
// SQLite key/value schema. Values are stored as JSON documents.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/woojubb/robota-go/core"
)

// Store persists JSON documents in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and ensures the schema
// exists.
func New(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, core.NewConfigurationError("storage", "sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &core.StorageError{Op: "open", Err: fmt.Errorf("create sqlite directory: %w", err)}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &core.StorageError{Op: "open", Err: err}
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, &core.StorageError{Op: "open", Err: fmt.Errorf("set busy_timeout: %w", err)}
	}

	const schema = `CREATE TABLE IF NOT EXISTS records (
  key        TEXT PRIMARY KEY,
  value      JSON NOT NULL,
  updated_at TEXT NOT NULL
);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, &core.StorageError{Op: "open", Err: fmt.Errorf("bootstrap schema: %w", err)}
	}

	return &Store{db: db}, nil
}

// Save upserts the value under key.
func (s *Store) Save(ctx context.Context, key string, value map[string]any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return &core.StorageError{Op: "save", Key: key, Err: err}
	}

	const q = `INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`
	if _, err := s.db.ExecContext(ctx, q, key, string(data), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return &core.StorageError{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Load returns the value stored under key, or core.ErrNotFound.
func (s *Store) Load(ctx context.Context, key string) (map[string]any, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?;`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.StorageError{Op: "load", Key: key, Err: core.ErrNotFound}
	}
	if err != nil {
		return nil, &core.StorageError{Op: "load", Key: key, Err: err}
	}

	var value map[string]any
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return nil, &core.StorageError{Op: "load", Key: key, Err: err}
	}
	return value, nil
}

// List returns all keys in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM records ORDER BY key;`)
	if err != nil {
		return nil, &core.StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, &core.StorageError{Op: "list", Err: err}
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: "list", Err: err}
	}
	return keys, nil
}

// Delete removes the value under key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE key = ?;`, key); err != nil {
		return &core.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

// Clear removes every stored value.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records;`); err != nil {
		return &core.StorageError{Op: "clear", Err: err}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
