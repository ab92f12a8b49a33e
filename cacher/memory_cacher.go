package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCacher is a process-local Cacher backed by go-cache. Concurrent misses
// for one key share a single fetch through singleflight.
type MemoryCacher[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCacher creates an in-memory cache.
//
// Parameters:
//   - defaultExpiration: TTL used when GetOrFetch is given a zero ttl
//   - cleanupInterval: How often expired items are purged
//
// Returns:
//   - A new *MemoryCacher
func NewMemoryCacher[T any](defaultExpiration, cleanupInterval time.Duration) *MemoryCacher[T] {
	return &MemoryCacher[T]{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cacher. A caller whose ctx ends while waiting on a
// fetch started by another caller returns ctx.Err() without cancelling it.
func (c *MemoryCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	if ttl <= 0 {
		ttl = cache.DefaultExpiration
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.get(key); ok {
			return v, nil
		}

		v, err := fetchFn(ctx)
		if err != nil {
			return nil, err
		}

		c.cache.Set(key, v, ttl)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}

		v, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("unexpected type %T in cache for key %s", res.Val, key)
		}

		return v, nil
	}
}

// Delete implements Cacher.
func (c *MemoryCacher[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// ItemCount returns the number of cached items, including expired ones not yet
// purged.
func (c *MemoryCacher[T]) ItemCount() int {
	return c.cache.ItemCount()
}

func (c *MemoryCacher[T]) get(key string) (T, bool) {
	if v, found := c.cache.Get(key); found {
		if typed, ok := v.(T); ok {
			return typed, true
		}
	}

	var zero T
	return zero, false
}
