// Package cache is a small time-bounded key/value cache.
//
// Entries expire after the configured TTL or at an earlier deadline given to SetUntil.
// Readers may observe a value which is up to one TTL old; that staleness is accepted
// by every caller. Expired entries are swept by Set at most once per TTL.
package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a TTL cache safe for concurrent use
type Cache[V any] struct {
	mu        sync.RWMutex
	items     map[string]entry[V]
	ttl       time.Duration
	now       func() time.Time
	nextPurge time.Time
}

// New creates a cache whose entries live for ttl
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		items: make(map[string]entry[V]),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get retrieves a value from cache. Expired entries are reported as missing.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores a value
func (c *Cache[V]) Set(key string, value V) {
	c.SetUntil(key, value, time.Time{})
}

// SetUntil stores a value which expires at deadline or after the TTL, whichever
// comes first. A zero deadline means the TTL alone.
func (c *Cache[V]) SetUntil(key string, value V, deadline time.Time) {
	now := c.now()
	expiresAt := now.Add(c.ttl)
	if !deadline.IsZero() && deadline.Before(expiresAt) {
		expiresAt = deadline
	}
	c.mu.Lock()
	if now.After(c.nextPurge) {
		c.purge(now)
		c.nextPurge = now.Add(c.ttl)
	}
	c.items[key] = entry[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

// Delete removes key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Purge drops expired entries
func (c *Cache[V]) Purge() {
	now := c.now()
	c.mu.Lock()
	c.purge(now)
	c.mu.Unlock()
}

func (c *Cache[V]) purge(now time.Time) {
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
}

// GetOrLoad returns the cached value for key or calls load and caches its result.
// Load errors are returned and not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	c.Set(key, v)
	return v, nil
}
