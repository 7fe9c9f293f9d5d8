package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photoshare/pkg/config"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "photoshare:token:"

// RedisStore keeps tokens in Redis so several frontend replicas share sessions
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the configured Redis
func NewRedisStore(ctx context.Context, cfg *config.StorageConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the token stored for clientID
func (s *RedisStore) Get(ctx context.Context, clientID string) (string, bool, error) {
	token, err := s.client.Get(ctx, redisKeyPrefix+clientID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get token: %w", err)
	}
	return token, true, nil
}

// Set stores token for clientID without expiry
func (s *RedisStore) Set(ctx context.Context, clientID, token string) error {
	if err := s.client.Set(ctx, redisKeyPrefix+clientID, token, 0).Err(); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

// Delete removes the token of clientID
func (s *RedisStore) Delete(ctx context.Context, clientID string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+clientID).Err(); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// Close closes the Redis connection pool
func (s *RedisStore) Close() error {
	return s.client.Close()
}
