package price

import (
	"sync"
	"time"
)

// ttlCache is a minimal per-process, single-writer, TTL-only cache. It
// is deliberately not backed by a shared store (e.g. Redis): spec §5
// requires these caches be per-process so a stale value in one process
// can never be observed as fresh by another (see DESIGN.md for the
// rejected go-redis wiring).
type ttlCache[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[K]cacheEntry[V]
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func newTTLCache[K comparable, V any](ttl time.Duration) *ttlCache[K, V] {
	return &ttlCache[K, V]{ttl: ttl, entries: make(map[K]cacheEntry[V])}
}

// get returns the cached value for key if present and not expired as of
// now.
func (c *ttlCache[K, V]) get(key K, now time.Time) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || now.After(entry.expiresAt) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[K, V]) set(key K, value V, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry[V]{value: value, expiresAt: now.Add(c.ttl)}
}
