package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisCache implements Cache using a Redis backend. It is the shared tier
// used when several backend instances must see the same cached values;
// expiry is enforced by Redis itself rather than lazily on read.
type RedisCache[T any] struct {
	client *redis.Client
	codec  Codec
}

// NewRedis returns a new RedisCache using the provided Redis client.
// If codec is nil, JSONCodec is used by default.
func NewRedis[T any](client *redis.Client, codec Codec) *RedisCache[T] {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &RedisCache[T]{client: client, codec: codec}
}

// Get retrieves the value for the given key.
func (c *RedisCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	var v T
	if err := c.codec.Unmarshal(data, &v); err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set stores the value for the given key for the specified TTL. Redis
// rejects non-positive expirations, so a ttl <= 0 removes the key instead:
// the entry would be expired before any read could see it.
func (c *RedisCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Delete(ctx, key)
	}
	data, err := c.codec.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes the key from Redis.
func (c *RedisCache[T]) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Clear removes every key in the selected Redis database.
func (c *RedisCache[T]) Clear(ctx context.Context) error {
	return c.client.FlushDB(ctx).Err()
}
