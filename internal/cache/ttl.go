package cache

import (
	"sync"
	"time"

	"github.com/smallbiznis/creditmeter/internal/clock"
)

// Cache is a keyed store whose entries expire individually.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries map[K]ttlEntry[V]
}

func NewTTLCache[K comparable, V any](clk clock.Clock) Cache[K, V] {
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &ttlCache[K, V]{clock: clk, entries: make(map[K]ttlEntry[V])}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		c.evictExpired(key)
		return zero, false
	}
	return entry.value, true
}

// evictExpired removes key only if it is still expired under the write lock,
// so a Set landing after the read is kept.
func (c *ttlCache[K, V]) evictExpired(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if ok && !c.clock.Now().Before(entry.expiresAt) {
		delete(c.entries, key)
	}
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = ttlEntry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
