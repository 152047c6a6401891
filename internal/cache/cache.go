// Package cache holds the TTL key-value abstraction the dashboard aggregator reads
// through, and its in-process implementation.
package cache

import (
	"context"
	"time"
)

// Cache is a TTL key-value store of opaque values.
//
// Get reports ok=false for a missing or expired key; err is reserved for backend failures.
// A ttl <= 0 passed to Set stores nothing.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Flush(ctx context.Context) error
}
