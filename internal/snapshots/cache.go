// Package snapshots provides bounded, TTL-limited history of option chain
// snapshots: an in-memory cache serving the enrichment comparison and a
// sqlite-backed archive of recent history.
package snapshots

import (
	"sync"
	"time"
)

const (
	// DefaultDepth is how many snapshots a key retains; the oldest is
	// evicted first.
	DefaultDepth = 3

	// DefaultTTL expires a whole key this long after its last write.
	DefaultTTL = 24 * time.Hour
)

// Snapshot is one timestamped payload stored for later comparison.
type Snapshot[T any] struct {
	Timestamp time.Time
	Payload   T
}

type keyHistory[T any] struct {
	entries   []Snapshot[T]
	lastWrite time.Time
}

// Cache keeps a bounded per-key history of snapshots. Writes to a given key
// must be serialized by the owner of that key (the poller tick); the cache
// only guards its own map across keys.
type Cache[T any] struct {
	mu    sync.RWMutex
	keys  map[string]*keyHistory[T]
	depth int
	ttl   time.Duration
	now   func() time.Time
}

// NewCache creates a cache holding up to depth snapshots per key, expiring a
// key ttl after its last write.
func NewCache[T any](depth int, ttl time.Duration) *Cache[T] {
	return NewCacheWithClock[T](depth, ttl, time.Now)
}

// NewCacheWithClock creates a cache with an injectable clock for tests.
func NewCacheWithClock[T any](depth int, ttl time.Duration, now func() time.Time) *Cache[T] {
	if depth < 2 {
		depth = DefaultDepth
	}
	return &Cache[T]{
		keys:  make(map[string]*keyHistory[T]),
		depth: depth,
		ttl:   ttl,
		now:   now,
	}
}

// Store appends a snapshot for the key, evicting the oldest entry once the
// key holds more than the configured depth.
func (c *Cache[T]) Store(key string, payload T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	h, ok := c.keys[key]
	if !ok || c.expired(h, now) {
		h = &keyHistory[T]{}
		c.keys[key] = h
	}

	h.entries = append(h.entries, Snapshot[T]{Timestamp: now, Payload: payload})
	if len(h.entries) > c.depth {
		h.entries = h.entries[len(h.entries)-c.depth:]
	}
	h.lastWrite = now
}

// GetPrevious returns the second-from-last snapshot payload for the key.
// It never returns the latest entry: with fewer than two entries there is
// no history to compare against and ok is false.
func (c *Cache[T]) GetPrevious(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	h, ok := c.keys[key]
	if !ok || c.expired(h, c.now()) || len(h.entries) < 2 {
		return zero, false
	}
	return h.entries[len(h.entries)-2].Payload, true
}

// GetLatest returns the most recent snapshot payload for the key.
func (c *Cache[T]) GetLatest(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	h, ok := c.keys[key]
	if !ok || c.expired(h, c.now()) || len(h.entries) == 0 {
		return zero, false
	}
	return h.entries[len(h.entries)-1].Payload, true
}

// Delete removes a key and its history.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.keys, key)
}

// DeleteExpired removes all keys whose TTL has lapsed and returns how many
// were dropped.
func (c *Cache[T]) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	deleted := 0
	for key, h := range c.keys {
		if c.expired(h, now) {
			delete(c.keys, key)
			deleted++
		}
	}
	return deleted
}

// Len returns the number of live keys.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

func (c *Cache[T]) expired(h *keyHistory[T], now time.Time) bool {
	return c.ttl > 0 && now.Sub(h.lastWrite) > c.ttl
}
