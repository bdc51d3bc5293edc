package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/studycompanion/studycache/v1/cache")

// Cache defines the basic operations for a cache layer.
//
// T represents the type of values stored in the cache.
type Cache[T any] interface {
	// Get retrieves a value for the given key. The boolean return
	// indicates whether the key was found and still live. An error is
	// returned if retrieving the value fails.
	Get(ctx context.Context, key string) (T, bool, error)
	// Set stores the value for the given key for the specified TTL.
	// A zero or negative TTL is never readable on any backend, but the
	// mechanism differs: InMemoryCache keeps the already-expired entry in
	// the map (visible to Size) until it is lazily evicted, while the
	// Redis and Ristretto backends delete the key outright.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	// Delete removes the key from the cache. Deleting an absent key is
	// not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every entry from the cache.
	Clear(ctx context.Context) error
}

// InMemoryCache is an in-memory cache with per-entry TTL and lazy
// expiration: an expired entry stays in the map until it is read, swept by
// CleanupExpired, or wiped by Clear. Size reports the raw entry count,
// expired entries included.
//
// The cache is unbounded. Keys that are written and never read again only
// go away through CleanupExpired or Clear, so hosts with churny key spaces
// should schedule CleanupExpired (or enable the sweeper) themselves. Use
// RistrettoCache when a hard memory cap is required.
type InMemoryCache[T any] struct {
	mu            sync.Mutex
	items         map[string]item[T]
	defaultTTL    time.Duration
	hits          atomic.Uint64
	misses        atomic.Uint64
	sweepInterval time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup

	hitCounter      prometheus.Counter
	missCounter     prometheus.Counter
	evictionCounter prometheus.Counter
	latencyHist     prometheus.Histogram
	traceEnabled    bool
}

type item[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemoryOption configures an InMemoryCache.
type InMemoryOption[T any] func(*InMemoryCache[T])

// WithDefaultTTL sets the TTL used by SetDefault. The default is DefaultTTL.
func WithDefaultTTL[T any](d time.Duration) InMemoryOption[T] {
	return func(c *InMemoryCache[T]) {
		c.defaultTTL = d
	}
}

// WithSweepInterval enables a background goroutine that runs CleanupExpired
// periodically. A zero or negative duration leaves the sweeper disabled,
// which is the default: expiration is lazy plus on-demand CleanupExpired.
func WithSweepInterval[T any](d time.Duration) InMemoryOption[T] {
	return func(c *InMemoryCache[T]) {
		c.sweepInterval = d
	}
}

// WithMetrics enables Prometheus metrics collection using the provided registerer.
func WithMetrics[T any](reg prometheus.Registerer) InMemoryOption[T] {
	return func(c *InMemoryCache[T]) {
		c.hitCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studycache_hits_total",
			Help: "Total number of cache hits",
		})
		c.missCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studycache_misses_total",
			Help: "Total number of cache misses",
		})
		c.evictionCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studycache_evictions_total",
			Help: "Total number of expired entries removed",
		})
		c.latencyHist = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "studycache_latency_seconds",
			Help:    "Latency of cache operations",
			Buckets: prometheus.DefBuckets,
		})
		reg.MustRegister(c.hitCounter, c.missCounter, c.evictionCounter, c.latencyHist)
	}
}

// WithTracing enables OpenTelemetry tracing for cache operations.
func WithTracing[T any]() InMemoryOption[T] {
	return func(c *InMemoryCache[T]) {
		c.traceEnabled = true
	}
}

// NewInMemory returns a new InMemoryCache instance.
//
// Entries stored through SetDefault use the cache-wide default TTL, which
// can be changed with WithDefaultTTL. No background sweeper runs unless
// WithSweepInterval is given a positive duration.
func NewInMemory[T any](opts ...InMemoryOption[T]) *InMemoryCache[T] {
	ctx, cancel := context.WithCancel(context.Background())
	c := &InMemoryCache[T]{
		items:      make(map[string]item[T]),
		defaultTTL: DefaultTTL,
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sweepInterval > 0 {
		c.wg.Add(1)
		go c.sweeper()
	}
	return c
}

// Get implements Cache.Get. Reading an expired entry removes it from the
// map as a side effect and reports a miss.
func (c *InMemoryCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var span trace.Span
	var start time.Time
	if c.traceEnabled {
		ctx, span = tracer.Start(ctx, "Cache.Get")
		defer span.End()
		start = time.Now()
	} else if c.latencyHist != nil {
		start = time.Now()
	}

	if c.traceEnabled || c.latencyHist != nil {
		defer func() {
			latency := time.Since(start)
			if c.traceEnabled {
				span.SetAttributes(attribute.Int64("studycache.latency_ms", latency.Milliseconds()))
			}
			if c.latencyHist != nil {
				c.latencyHist.Observe(latency.Seconds())
			}
		}()
	}
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	default:
	}
	c.mu.Lock()
	it, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		c.misses.Add(1)
		if c.missCounter != nil {
			c.missCounter.Inc()
		}
		if c.traceEnabled {
			span.SetAttributes(attribute.String("studycache.result", "miss"))
		}
		var zero T
		return zero, false, nil
	}
	if time.Now().After(it.expiresAt) {
		// lazy eviction
		delete(c.items, key)
		c.mu.Unlock()
		c.misses.Add(1)
		if c.missCounter != nil {
			c.missCounter.Inc()
		}
		if c.evictionCounter != nil {
			c.evictionCounter.Inc()
		}
		if c.traceEnabled {
			span.SetAttributes(attribute.String("studycache.result", "expired"))
		}
		var zero T
		return zero, false, nil
	}
	c.mu.Unlock()
	c.hits.Add(1)
	if c.hitCounter != nil {
		c.hitCounter.Inc()
	}
	if c.traceEnabled {
		span.SetAttributes(attribute.String("studycache.result", "hit"))
	}
	return it.value, true, nil
}

// Set implements Cache.Set. The expiry is always now+ttl, so a zero or
// negative TTL stores an entry that is already expired: it occupies the map
// (and counts toward Size) until the next read, sweep, or Clear.
func (c *InMemoryCache[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	var span trace.Span
	if c.traceEnabled {
		_, span = tracer.Start(ctx, "Cache.Set")
		defer span.End()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	exp := time.Now().Add(ttl)
	c.mu.Lock()
	c.items[key] = item[T]{value: value, expiresAt: exp}
	c.mu.Unlock()
	return nil
}

// SetDefault stores the value under the cache-wide default TTL.
func (c *InMemoryCache[T]) SetDefault(ctx context.Context, key string, value T) error {
	return c.Set(ctx, key, value, c.defaultTTL)
}

// Delete implements Cache.Delete.
func (c *InMemoryCache[T]) Delete(ctx context.Context, key string) error {
	var span trace.Span
	if c.traceEnabled {
		_, span = tracer.Start(ctx, "Cache.Delete")
		defer span.End()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
	return nil
}

// Clear implements Cache.Clear.
func (c *InMemoryCache[T]) Clear(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	c.items = make(map[string]item[T])
	c.mu.Unlock()
	return nil
}

// CleanupExpired scans the whole map and removes every entry whose expiry
// has passed, returning the number removed. Entries with now <= expiry are
// kept.
func (c *InMemoryCache[T]) CleanupExpired() int {
	now := time.Now()
	removed := 0
	c.mu.Lock()
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	c.mu.Unlock()
	if c.evictionCounter != nil && removed > 0 {
		c.evictionCounter.Add(float64(removed))
	}
	return removed
}

// Size returns the raw entry count, including entries that are logically
// expired but not yet evicted.
func (c *InMemoryCache[T]) Size() int {
	c.mu.Lock()
	n := len(c.items)
	c.mu.Unlock()
	return n
}

// sweeper runs CleanupExpired at the configured interval until Close.
func (c *InMemoryCache[T]) sweeper() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-c.ctx.Done():
			return
		}
	}
}

// Close terminates any background goroutines used by the cache.
func (c *InMemoryCache[T]) Close() {
	c.cancel()
	c.wg.Wait()
}

// Stats reports basic metrics about cache usage.
type Stats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

// Metrics returns current metrics for the cache.
func (c *InMemoryCache[T]) Metrics() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.Size(),
	}
}
