// Package redisstore provides a Redis-backed implementation of
// [store.TokenStore] using github.com/redis/go-redis/v9.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/store"
)

// Compile-time check that *Store satisfies store.TokenStore.
var _ store.TokenStore = (*Store)(nil)

// Store is a Redis-backed [store.TokenStore]. All methods are safe for
// concurrent use; the underlying client pools connections internally.
type Store struct {
	client *redis.Client
}

// Config holds Redis connection settings.
type Config struct {
	// Addr is the host:port of the Redis server (e.g., "localhost:6379").
	Addr string

	// Password is the optional AUTH password. Empty means no auth.
	Password string

	// DB selects the logical Redis database.
	DB int
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping: %w", err)
	}
	return &Store{client: client}, nil
}

// Get implements [store.TokenStore.Get].
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return val, nil
}

// Set implements [store.TokenStore.Set].
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

// SetEx implements [store.TokenStore.SetEx].
func (s *Store) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	if err := s.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: setex %q: %w", key, err)
	}
	return nil
}

// Exists implements [store.TokenStore.Exists].
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: exists %q: %w", key, err)
	}
	return n > 0, nil
}

// Delete implements [store.TokenStore.Delete].
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redisstore: delete: %w", err)
	}
	return nil
}

// Ping probes the Redis connection. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client's connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
