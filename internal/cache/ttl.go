// Package cache implements a small in-memory TTL cache. Entries older than
// the configured TTL are treated as absent and evicted lazily on read; there
// is no background sweeper.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// Info is a lightweight diagnostic snapshot of a cache instance.
type Info struct {
	Keys   int
	MinAge time.Duration
	MaxAge time.Duration
}

// TTL is a mutex-guarded key→value cache with read-time expiry.
type TTL[K comparable, V any] struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[K]entry[V]

	// now is a seam for tests.
	now func() time.Time
}

func New[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{
		ttl:  ttl,
		data: make(map[K]entry[V]),
		now:  time.Now,
	}
}

func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, storedAt: c.now()}
}

// Get returns the value for key. An entry older than the TTL is evicted and
// reported as absent.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.data[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.data, key)
		return zero, false
	}
	return e.value, true
}

// Delete removes key regardless of age.
func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

func (c *TTL[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[K]entry[V])
}

// Info reports the entry count and min/max entry age. Expired-but-unread
// entries still count; they disappear on the next Get or Clear.
func (c *TTL[K, V]) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()

	info := Info{Keys: len(c.data)}
	now := c.now()
	first := true
	for _, e := range c.data {
		age := now.Sub(e.storedAt)
		if first || age < info.MinAge {
			info.MinAge = age
		}
		if first || age > info.MaxAge {
			info.MaxAge = age
		}
		first = false
	}
	return info
}
