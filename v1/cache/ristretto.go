package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoCache implements Cache using dgraph-io/ristretto. Unlike
// InMemoryCache it enforces a memory cap and may evict live entries under
// pressure, so it is an explicit opt-in for hosts that need bounds.
type RistrettoCache[T any] struct {
	c *ristretto.Cache
}

// RistrettoOption configures the underlying ristretto cache.
type RistrettoOption func(*ristretto.Config)

// WithRistretto applies a custom ristretto configuration.
//
// If cfg is nil, defaults are used.
func WithRistretto(cfg *ristretto.Config) RistrettoOption {
	return func(c *ristretto.Config) {
		if cfg == nil {
			return
		}
		*c = *cfg
	}
}

// NewRistretto returns a Cache backed by ristretto.
//
// Default configuration aims for a generous in-memory cache.
func NewRistretto[T any](opts ...RistrettoOption) *RistrettoCache[T] {
	cfg := &ristretto.Config{
		NumCounters: 1e4,     // number of keys to track frequency of (10k).
		MaxCost:     1 << 20, // maximum cost of cache (1MB by default).
		BufferItems: 64,      // number of keys per Get buffer.
	}
	for _, opt := range opts {
		opt(cfg)
	}
	rc, err := ristretto.NewCache(cfg)
	if err != nil {
		panic(err)
	}
	return &RistrettoCache[T]{c: rc}
}

// estimateCost approximates the memory cost of a value for ristretto
// accounting. Sized kinds use their length; everything else costs 1.
func estimateCost(v any) int64 {
	switch t := v.(type) {
	case string:
		return int64(len(t))
	case []byte:
		return int64(len(t))
	default:
		return 1
	}
}

// Get implements Cache.Get.
func (r *RistrettoCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	default:
	}
	v, ok := r.c.Get(key)
	if !ok {
		var zero T
		return zero, false, nil
	}
	val, _ := v.(T)
	return val, true, nil
}

// Set implements Cache.Set. A ttl <= 0 removes the key: ristretto rejects
// non-positive TTLs and the entry would be dead on arrival anyway.
func (r *RistrettoCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if ttl <= 0 {
		r.c.Del(key)
		r.c.Wait()
		return nil
	}
	r.c.SetWithTTL(key, value, estimateCost(value), ttl)
	r.c.Wait()
	return nil
}

// Delete implements Cache.Delete.
func (r *RistrettoCache[T]) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.c.Del(key)
	r.c.Wait()
	return nil
}

// Clear implements Cache.Clear.
func (r *RistrettoCache[T]) Clear(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	r.c.Clear()
	return nil
}

// Close releases resources held by the cache.
func (r *RistrettoCache[T]) Close() {
	r.c.Close()
}
