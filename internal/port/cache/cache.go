// Package cache defines the port interface for byte-valued caching.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value cache. A miss is (nil, false, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
