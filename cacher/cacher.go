// Package cacher caches values that are expensive to build, such as the
// serialized status document, with stampede protection: concurrent misses for
// the same key run the fetch once.
package cacher

import (
	"context"
	"time"
)

// FetchFunc builds the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values of type T by key.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn, stores the
	// result for ttl and returns it. Errors from fetchFn are returned and nothing
	// is cached.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key
	//   - ttl: How long a fetched value stays valid
	//   - fetchFn: Builds the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - An error if the cache or fetchFn fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete drops key so the next GetOrFetch fetches again.
	Delete(ctx context.Context, key string) error
}
