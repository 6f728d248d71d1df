package clientcache

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache memoizes expensive clients (SDK handles, connection pools) by key.
// Concurrent callers for the same key share one factory invocation.
type Cache[T any] struct {
	cache   sync.Map
	sfGroup singleflight.Group
}

func NewCache[T any]() *Cache[T] {
	return &Cache[T]{}
}

// GetOrCreate returns the cached value for key, building it with factory on
// first use. Factory errors are not cached; the next call retries.
func (c *Cache[T]) GetOrCreate(key string, factory func() (T, error)) (T, error) {
	if cached, ok := c.cache.Load(key); ok {
		return cached.(T), nil
	}

	v, err, _ := c.sfGroup.Do(key, func() (any, error) {
		// Re-check under the singleflight lock
		if cached, ok := c.cache.Load(key); ok {
			return cached.(T), nil
		}

		client, err := factory()
		if err != nil {
			var zero T
			return zero, err
		}

		c.cache.Store(key, client)
		return client, nil
	})

	if err != nil {
		var zero T
		return zero, err
	}

	return v.(T), nil
}

// Delete removes the value for key, forcing a rebuild on next use.
func (c *Cache[T]) Delete(key string) {
	c.cache.Delete(key)
}

// Clear removes every cached value.
func (c *Cache[T]) Clear() {
	c.cache.Range(func(key, value any) bool {
		c.cache.Delete(key)
		return true
	})
}
