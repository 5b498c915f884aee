// Package marketdata supplies spot prices, per-leg Greeks, and the
// risk-free rate the analytics kernel needs, behind a TTL cache with
// singleflight request coalescing.
package marketdata

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	quoteTTL  = 15 * time.Second
	greeksTTL = 30 * time.Second
	rateTTL   = 6 * time.Hour

	evictAfter = 30 * time.Minute
)

type cacheEntry struct {
	value   interface{}
	expires time.Time
	updated time.Time
}

// ttlCache is a thread-safe, generic-by-convention cache keyed by string,
// pairing a singleflight.Group with an RWMutex-guarded map exactly as the
// teacher's OrderCache does for region market orders.
type ttlCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	group   singleflight.Group
}

func newTTLCache() *ttlCache {
	return &ttlCache{entries: make(map[string]*cacheEntry)}
}

func (c *ttlCache) get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

func (c *ttlCache) put(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 200 {
		now := time.Now()
		for k, e := range c.entries {
			if now.Sub(e.expires) > evictAfter {
				delete(c.entries, k)
			}
		}
	}

	c.entries[key] = &cacheEntry{value: value, expires: time.Now().Add(ttl), updated: time.Now()}
}

// fetch returns the cached value for key if fresh, otherwise calls fn once
// even under concurrent callers (via singleflight) and caches the result
// for ttl.
func (c *ttlCache) fetch(key string, ttl time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		c.put(key, v, ttl)
		return v, nil
	})
	return v, err
}

// evictExpired removes entries that have been stale for longer than
// evictAfter, bounding memory when many symbols rotate through the cache
// over a long-running process.
func (c *ttlCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.expires) > evictAfter {
			delete(c.entries, k)
			n++
		}
	}
	return n
}
