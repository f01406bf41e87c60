// Package cache wraps go-cache with a typed, string-keyed API used for
// resolved schemas and compiled conditions.
package cache

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 30 * time.Minute
)

// NoExpiration keeps an entry until it is deleted or the cache is flushed.
const NoExpiration = gocache.NoExpiration

// Cache is a typed in-memory cache. The zero value is not usable; call New.
type Cache[V any] struct {
	useCase string
	cache   *gocache.Cache
	logger  *slog.Logger
}

// New creates a cache for one use case. The use case name is attached to
// log lines.
func New[V any](useCase string, defaultExpiration, cleanupInterval time.Duration, logger *slog.Logger) *Cache[V] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
		logger:  logger.With("cache", useCase),
	}
}

// Get retrieves an item from the cache by its key.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(key)
	if !found {
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		c.logger.ErrorContext(ctx, "wrong type assertion when getting value", "key", key)
		return zeroValue, false
	}

	c.logger.DebugContext(ctx, "cache hit", "key", key)
	return v, true
}

// Set stores value under key. A ttl of 0 uses the default expiration.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) {
	c.cache.Set(key, value, ttl)
}

// Delete removes keys from the cache.
func (c *Cache[V]) Delete(ctx context.Context, keys ...string) {
	for _, key := range keys {
		c.cache.Delete(key)
	}
}

// Flush removes every entry.
func (c *Cache[V]) Flush(ctx context.Context) {
	c.cache.Flush()
	c.logger.DebugContext(ctx, "cache flushed")
}

// Len returns the number of entries, including expired ones not yet
// cleaned up.
func (c *Cache[V]) Len() int {
	return c.cache.ItemCount()
}

// GetOrLoad returns the cached value for key or calls load, caching its
// result on success. Errors are not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := c.Get(ctx, key); ok {
		return value, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	c.Set(ctx, key, value, ttl)
	return value, nil
}
