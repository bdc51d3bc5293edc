package metrics

import (
	"context"
	"time"

	"github.com/studycompanion/studycache/v1/cache"
)

// InstrumentedCache wraps a Cache and counts every operation on the
// package-level Prometheus collectors. Unlike cache.WithMetrics, which only
// the in-memory backend understands, this wrapper works with any backend.
type InstrumentedCache[T any] struct {
	inner cache.Cache[T]
}

// Instrument wraps c so that Get, Set and Delete increment GetCounter,
// SetCounter and DeleteCounter. Register the collectors on a registry with
// RegisterCacheMetrics before serving them.
func Instrument[T any](c cache.Cache[T]) *InstrumentedCache[T] {
	return &InstrumentedCache[T]{inner: c}
}

// Get implements cache.Cache.Get.
func (c *InstrumentedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	GetCounter.Inc()
	return c.inner.Get(ctx, key)
}

// Set implements cache.Cache.Set.
func (c *InstrumentedCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	SetCounter.Inc()
	return c.inner.Set(ctx, key, value, ttl)
}

// Delete implements cache.Cache.Delete.
func (c *InstrumentedCache[T]) Delete(ctx context.Context, key string) error {
	DeleteCounter.Inc()
	return c.inner.Delete(ctx, key)
}

// Clear implements cache.Cache.Clear.
func (c *InstrumentedCache[T]) Clear(ctx context.Context) error {
	return c.inner.Clear(ctx)
}

// CleanupExpired forwards to the wrapped cache when it supports sweeping and
// records the removed count on CleanupGauge. It returns 0 for backends that
// expire entries on their own.
func (c *InstrumentedCache[T]) CleanupExpired() int {
	s, ok := c.inner.(interface{ CleanupExpired() int })
	if !ok {
		return 0
	}
	removed := s.CleanupExpired()
	CleanupGauge.Set(float64(removed))
	return removed
}
