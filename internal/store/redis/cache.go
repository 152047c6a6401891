package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// flushBatch is the SCAN count hint and the number of keys per DEL during Flush.
const flushBatch = 100

// Store is a Redis implementation of cache.Cache.
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore creates a Redis store writing under prefix (DefaultKeyPrefix when empty).
func NewStore(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Store{
		client: client,
		prefix: prefix,
	}
}

// Get retrieves a cached value. A missing key is a miss, not an error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.dashboardKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil // Cache miss
		}
		return nil, false, fmt.Errorf("failed to get cached value: %w", err)
	}
	return data, true, nil
}

// Set stores a value with ttl. Redis expires it natively.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.dashboardKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache value: %w", err)
	}
	return nil
}

// Flush removes every cached dashboard of this namespace. The scan runs to
// completion before anything is deleted so the cursor never sees a mutated keyspace.
func (s *Store) Flush(ctx context.Context) error {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.dashboardPattern(), flushBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to flush cache: %w", err)
	}

	for start := 0; start < len(keys); start += flushBatch {
		end := min(start+flushBatch, len(keys))
		if err := s.client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
