package store

import (
	"context"
	"fmt"

	"photoshare/pkg/config"
)

// TokenStore is the durable storage for session tokens, one per client
type TokenStore interface {
	// Get returns the stored token. A missing key is not an error.
	Get(ctx context.Context, clientID string) (string, bool, error)
	Set(ctx context.Context, clientID, token string) error
	Delete(ctx context.Context, clientID string) error
	Close() error
}

// New opens the backend selected by cfg.Storage.Driver
func New(cfg *config.Config) (TokenStore, error) {
	switch cfg.Storage.Driver {
	case "", "file":
		return NewFileStore(cfg.DataDir)
	case "redis":
		return NewRedisStore(context.Background(), &cfg.Storage)
	case "sqlite":
		return NewSQLiteStore(cfg.Storage.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
