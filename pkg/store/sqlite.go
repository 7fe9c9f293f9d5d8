package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps tokens in a local SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates) the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	// Enable WAL mode for concurrent readers
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS tokens (
		client_id TEXT PRIMARY KEY,
		token TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tokens table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the token stored for clientID
func (s *SQLiteStore) Get(ctx context.Context, clientID string) (string, bool, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `SELECT token FROM tokens WHERE client_id = ?`, clientID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get token: %w", err)
	}
	return token, true, nil
}

// Set stores token for clientID
func (s *SQLiteStore) Set(ctx context.Context, clientID, token string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO tokens (client_id, token, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(client_id) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		clientID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

// Delete removes the token of clientID
func (s *SQLiteStore) Delete(ctx context.Context, clientID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tokens WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
