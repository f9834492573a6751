package cache

import (
	"time"

	"github.com/maypok86/otter"
)

// MemoryCache is a bounded in-process L1 cache with per-item TTL, backed by
// otter's S3-FIFO implementation.
type MemoryCache[K comparable, V any] struct {
	store otter.Cache[K, V]
}

// NewMemoryCache caps the cache at capacity items; entries expire after ttl.
func NewMemoryCache[K comparable, V any](capacity int, ttl time.Duration) (*MemoryCache[K, V], error) {
	store, err := otter.MustBuilder[K, V](capacity).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, err
	}
	return &MemoryCache[K, V]{store: store}, nil
}

func (c *MemoryCache[K, V]) Get(key K) (V, bool) {
	return c.store.Get(key)
}

func (c *MemoryCache[K, V]) Set(key K, value V) {
	c.store.Set(key, value)
}

func (c *MemoryCache[K, V]) Del(key K) {
	c.store.Delete(key)
}

// Clear drops every entry; used after writes that change aggregates.
func (c *MemoryCache[K, V]) Clear() {
	c.store.Clear()
}

// Len is the current item count.
func (c *MemoryCache[K, V]) Len() int {
	return c.store.Size()
}

func (c *MemoryCache[K, V]) Close() {
	c.store.Close()
}
