// Package tiered layers a process-local cache in front of a shared one.
package tiered

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/port/cache"
)

// Cache reads through local to shared and writes to both. The shared tier
// is best effort: while it fails the cache keeps serving from local, so
// replicas merely stop seeing each other's idempotency entries.
type Cache struct {
	local    cache.Cache
	shared   cache.Cache
	localTTL time.Duration
	degraded atomic.Bool
}

var _ cache.Cache = (*Cache)(nil)

// New returns a tiered cache. localTTL caps the lifetime of local copies.
func New(local, shared cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, shared: shared, localTTL: localTTL}
}

// Degraded reports whether the last shared-tier operation failed.
func (c *Cache) Degraded() bool { return c.degraded.Load() }

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok, err := c.local.Get(ctx, key); err != nil || ok {
		return v, ok, err
	}
	v, ok, err := c.shared.Get(ctx, key)
	c.observe(ctx, "get", err)
	if err != nil || !ok {
		return nil, false, nil
	}
	_ = c.local.Set(ctx, key, v, c.localTTL)
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, c.capTTL(ttl)); err != nil {
		return err
	}
	c.observe(ctx, "set", c.shared.Set(ctx, key, value, ttl))
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	err := c.shared.Delete(ctx, key)
	c.observe(ctx, "delete", err)
	return err
}

func (c *Cache) capTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > c.localTTL {
		return c.localTTL
	}
	return ttl
}

// observe logs only on transitions between healthy and degraded.
func (c *Cache) observe(ctx context.Context, op string, err error) {
	failed := err != nil
	if c.degraded.Swap(failed) == failed {
		return
	}
	if failed {
		slog.WarnContext(ctx, "shared cache unavailable, serving local only", "op", op, "error", err)
	} else {
		slog.InfoContext(ctx, "shared cache recovered", "op", op)
	}
}
