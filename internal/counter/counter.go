// Package counter stores the per-mailbox rotation index used for round-robin
// assignment. Increment must be atomic across concurrent handlers.
package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Store is a shared integer counter keyed by string
type Store interface {
	Get(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string) (int64, error)
}

// RedisStore keeps counters in Redis using INCR
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a go-redis client
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Open returns a Redis-backed store when addr is set and an in-process store
// otherwise. An unreachable Redis is still used so every replica shares the
// same counters once it recovers; callers absorb per-call failures.
func Open(ctx context.Context, addr string, logger zerolog.Logger) Store {
	if addr == "" {
		logger.Warn().Msg("REDIS_ADDR not set, using in-process rotation counters")
		return NewMemoryStore()
	}
	return connect(ctx, redis.NewClient(&redis.Options{Addr: addr}), logger)
}

func connect(ctx context.Context, client redis.Cmdable, logger zerolog.Logger) *RedisStore {
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis ping failed, keeping Redis rotation counters")
	} else {
		logger.Info().Msg("Redis rotation counter store connected")
	}
	return NewRedisStore(client)
}

// Get returns the counter value, or 0 when the key is absent
func (s *RedisStore) Get(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return value, nil
}

// Increment atomically adds one and returns the new value
func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	value, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return value, nil
}

// MemoryStore is an in-process counter for single-replica deployments and tests
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemoryStore creates an empty in-process counter store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]int64)}
}

// Get returns the counter value, or 0 when the key is absent
func (s *MemoryStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

// Increment atomically adds one and returns the new value
func (s *MemoryStore) Increment(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key]++
	return s.values[key], nil
}

// Set overwrites a counter value
func (s *MemoryStore) Set(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
