// Package tiered combines an in-process L1 and a shared L2 cache.
package tiered

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/AgentForge/internal/port/cache"
)

// Cache reads L1 then L2, backfilling L1 on an L2 hit. Writes go to both.
// The L1 is best effort: its errors are logged and the L2 result stands.
type Cache struct {
	l1       cache.Cache
	l2       cache.Cache
	l1Expire time.Duration
}

// New creates a tiered cache. l1Expire bounds how long backfilled entries
// live in L1.
func New(l1, l2 cache.Cache, l1Expire time.Duration) *Cache {
	return &Cache{l1: l1, l2: l2, l1Expire: l1Expire}
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.l1.Get(ctx, key); err != nil {
		slog.WarnContext(ctx, "l1 cache get", "key", key, "error", err)
	} else if ok {
		return val, true, nil
	}

	val, ok, err := c.l2.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := c.l1.Set(ctx, key, val, c.l1Expire); err != nil {
		slog.WarnContext(ctx, "l1 cache backfill", "key", key, "error", err)
	}
	return val, true, nil
}

// Set implements cache.Cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := ttl
	if c.l1Expire > 0 && (l1TTL <= 0 || l1TTL > c.l1Expire) {
		l1TTL = c.l1Expire
	}
	if err := c.l1.Set(ctx, key, value, l1TTL); err != nil {
		slog.WarnContext(ctx, "l1 cache set", "key", key, "error", err)
	}
	return c.l2.Set(ctx, key, value, ttl)
}

// Delete implements cache.Cache. L2 is deleted first so a concurrent reader
// cannot backfill a stale L1 entry from it.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.l2.Delete(ctx, key); err != nil {
		return err
	}
	return c.l1.Delete(ctx, key)
}
