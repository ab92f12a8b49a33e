package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL     = 5 * time.Second
	defaultWaitTimeout = 5 * time.Second
	minBackoff         = 10 * time.Millisecond
	maxBackoff         = 250 * time.Millisecond
)

// releaseLockScript deletes the lock only if it is still held by the caller.
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisCacher is a Cacher shared by several front-ends through Redis. Values are
// stored as JSON under Prefix+key. A miss takes a short lock so only one
// front-end builds the value; the others poll until it appears.
type RedisCacher[T any] struct {
	client  redis.UniversalClient
	prefix  string
	lockTTL time.Duration
	wait    time.Duration
}

// NewRedisCacher creates a Redis-backed cache.
//
// Parameters:
//   - client: A connected Redis client
//   - prefix: Prepended to every key, for example "slp:"
//
// Returns:
//   - A new *RedisCacher
func NewRedisCacher[T any](client redis.UniversalClient, prefix string) *RedisCacher[T] {
	return &RedisCacher[T]{
		client:  client,
		prefix:  prefix,
		lockTTL: defaultLockTTL,
		wait:    defaultWaitTimeout,
	}
}

// GetOrFetch implements Cacher.
func (c *RedisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T
	fullKey := c.key(key)

	v, found, err := c.load(ctx, fullKey)
	if err != nil || found {
		return v, err
	}

	lockKey := fullKey + ":lock"
	token := strconv.FormatInt(time.Now().UnixNano(), 36)

	acquired, err := c.client.SetNX(ctx, lockKey, token, c.lockTTL).Result()
	if err != nil {
		return zero, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}

	if !acquired {
		return c.waitFor(ctx, fullKey, lockKey)
	}

	defer c.client.Eval(context.Background(), releaseLockScript, []string{lockKey}, token)

	v, err = fetchFn(ctx)
	if err != nil {
		return zero, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("marshal %s: %w", fullKey, err)
	}

	if err := c.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		return zero, fmt.Errorf("store %s: %w", fullKey, err)
	}

	return v, nil
}

// Delete implements Cacher.
func (c *RedisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", c.key(key), err)
	}

	return nil
}

func (c *RedisCacher[T]) key(key string) string {
	return c.prefix + key
}

func (c *RedisCacher[T]) load(ctx context.Context, fullKey string) (T, bool, error) {
	var v T

	data, err := c.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}

	if err != nil {
		return v, false, fmt.Errorf("get %s: %w", fullKey, err)
	}

	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("unmarshal %s: %w", fullKey, err)
	}

	return v, true, nil
}

// waitFor polls with exponential backoff until another holder of the lock
// stores the value, the lock disappears without a value, or the wait times out.
func (c *RedisCacher[T]) waitFor(ctx context.Context, fullKey, lockKey string) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, c.wait)
	defer cancel()

	backoff := minBackoff
	for {
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("wait for %s: %w", fullKey, ctx.Err())
		case <-timer.C:
		}

		v, found, err := c.load(ctx, fullKey)
		if err != nil || found {
			return v, err
		}

		held, err := c.client.Exists(ctx, lockKey).Result()
		if err != nil {
			return zero, fmt.Errorf("check lock %s: %w", lockKey, err)
		}

		if held == 0 {
			return zero, fmt.Errorf("value for %s was not stored by the lock holder", fullKey)
		}

		backoff = min(backoff*2, maxBackoff)
	}
}
