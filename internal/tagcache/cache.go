// Package tagcache is a process-local TTL cache whose entries carry
// invalidation tags. Writes to an entity invalidate its tags
// synchronously, so catalog listings never serve data older than the
// last gated write plus the narrow compute race accepted below.
package tagcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Metrics receives cache activity counts. Implementations must be safe
// for concurrent use.
type Metrics interface {
	CacheHit()
	CacheMiss()
	CacheInvalidated(entries int)
}

type entry struct {
	value     any
	tags      []string
	expiresAt time.Time
}

// Cache is the tag-indexed entry store. A single RWMutex guards the
// entry map and the tag index together so an invalidation never observes
// a partially indexed entry. The lock is never held across compute.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	tags    map[string]map[string]struct{}
	group   singleflight.Group
	metrics Metrics
	now     func() time.Time
}

// New constructs an empty Cache. metrics may be nil.
func New(metrics Metrics) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		tags:    make(map[string]map[string]struct{}),
		metrics: metrics,
		now:     time.Now,
	}
}

// GetOrCompute returns the live cached value for key, or runs compute,
// stores its result under the given tags for ttl, and returns it.
// Concurrent misses for one key share a single compute. A compute that
// races an invalidation of the same tag may briefly populate a stale
// entry; the window is bounded by ttl and accepted over serializing all
// cache access.
func (c *Cache) GetOrCompute(ctx context.Context, key string, tags []string, ttl time.Duration, compute func(context.Context) (any, error)) (any, error) {
	if value, ok := c.lookup(key); ok {
		if c.metrics != nil {
			c.metrics.CacheHit()
		}
		return value, nil
	}
	if c.metrics != nil {
		c.metrics.CacheMiss()
	}

	resultCh := c.group.DoChan(key, func() (any, error) {
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, value, tags, ttl)
		return value, nil
	})

	select {
	case <-ctx.Done():
		// The entry stays absent for this caller; the shared compute may
		// still finish and populate for others.
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	}
}

// Invalidate removes every entry reachable from each tag, from the entry
// store and from every other tag bucket the entry appears in. Calling it
// with an unknown tag is a no-op, so repeated invalidations are safe.
func (c *Cache) Invalidate(tags ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, tag := range tags {
		keys := c.tags[tag]
		for key := range keys {
			if c.removeLocked(key) {
				removed++
			}
		}
		delete(c.tags, tag)
	}
	if removed > 0 && c.metrics != nil {
		c.metrics.CacheInvalidated(removed)
	}
}

// Len reports the number of live entries, for tests and debugging.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent store may have
		// replaced the entry since the read.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			c.removeLocked(key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key string, value any, tags []string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace wholesale: drop any previous tag memberships first.
	c.removeLocked(key)

	c.entries[key] = entry{
		value:     value,
		tags:      append([]string(nil), tags...),
		expiresAt: c.now().Add(ttl),
	}
	for _, tag := range tags {
		keys := c.tags[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// removeLocked deletes an entry and unindexes it from all of its tags.
// Caller holds the write lock.
func (c *Cache) removeLocked(key string) bool {
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	delete(c.entries, key)
	for _, tag := range e.tags {
		if keys := c.tags[tag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.tags, tag)
			}
		}
	}
	return true
}
