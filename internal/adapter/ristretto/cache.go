// Package ristretto implements the cache port with dgraph-io/ristretto,
// used as the in-process L1 cache.
package ristretto

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache is a size-bounded in-process cache. Cost is the value length.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxMB megabytes of values.
func New(maxMB int64) (*Cache, error) {
	if maxMB < 1 {
		return nil, errors.New("ristretto: size must be at least 1 MB")
	}
	maxCost := maxMB << 20
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCost / 1024 * 10, // ~1 KiB entries, 10 counters each
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached value, or a miss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.c.Get(key)
	return val, ok, nil
}

// Set stores value. Admission is asynchronous and may be refused.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() { c.c.Wait() }

// Close releases the cache.
func (c *Cache) Close() { c.c.Close() }
