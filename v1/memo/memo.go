package memo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/studycompanion/studycache/v1/cache"
	"golang.org/x/sync/singleflight"
)

// Key derives the cache key for a memoized call:
//
//	<prefix>:<fn>:<args>:<kwargs>
//
// where args are the positional argument values formatted with %v and
// joined by ",", and kwargs are "name=value" pairs sorted by name and
// joined by ",". The kwargs sort makes the key independent of call-site
// ordering. Both segments are present even when empty, so the key always
// has four colon-separated sections and can be reconstructed by hand to
// Delete a memoized result.
func Key(prefix, fn string, args []any, kwargs map[string]any) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteByte(':')
	b.WriteString(fn)
	b.WriteByte(':')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%v", a)
	}
	b.WriteByte(':')
	names := make([]string, 0, len(kwargs))
	for name := range kwargs {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", name, kwargs[name])
	}
	return b.String()
}

// Memoizer caches function results in a Cache under keys derived by Key.
//
// A hit returns the cached value without invoking the computation. On a
// miss the computation runs, its result is stored under the derived key
// for the configured TTL, and the result is returned. Errors from the
// computation propagate to the caller unchanged and are never cached, so
// a failing computation is retried on every call until it succeeds.
// Concurrent calls for the same key are collapsed into one computation;
// the callers waiting on it share its result, error included.
type Memoizer[T any] struct {
	cache  cache.Cache[T]
	prefix string
	ttl    time.Duration
	group  singleflight.Group
}

// New returns a Memoizer storing results in c under the given key prefix
// for the given TTL.
func New[T any](c cache.Cache[T], prefix string, ttl time.Duration) *Memoizer[T] {
	return &Memoizer[T]{cache: c, prefix: prefix, ttl: ttl}
}

// Do runs compute unless a live result for the derived key is cached.
// fn names the computation; args and kwargs identify the call.
func (m *Memoizer[T]) Do(ctx context.Context, fn string, args []any, kwargs map[string]any, compute func(context.Context) (T, error)) (T, error) {
	return m.DoKey(ctx, Key(m.prefix, fn, args, kwargs), compute)
}

// DoKey is Do with an explicit, caller-built key.
//
// Cache failures are not computation failures: a Get or Set error degrades
// to a recompute, it never surfaces to the caller.
func (m *Memoizer[T]) DoKey(ctx context.Context, key string, compute func(context.Context) (T, error)) (T, error) {
	if v, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		return v, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		// another caller may have filled the key while we queued
		if v, ok, err := m.cache.Get(ctx, key); err == nil && ok {
			return v, nil
		}
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		_ = m.cache.Set(ctx, key, res, m.ttl)
		return res, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Forget removes the memoized result for the given call so the next Do
// recomputes it.
func (m *Memoizer[T]) Forget(ctx context.Context, fn string, args []any, kwargs map[string]any) error {
	return m.cache.Delete(ctx, Key(m.prefix, fn, args, kwargs))
}

// Wrap1 returns a memoized version of a one-argument function. The
// returned function derives its key from name and the argument value, so
// wrapping once and calling through the wrapper gives every call site the
// same cache.
func Wrap1[A any, R any](m *Memoizer[R], name string, fn func(context.Context, A) (R, error)) func(context.Context, A) (R, error) {
	return func(ctx context.Context, a A) (R, error) {
		return m.Do(ctx, name, []any{a}, nil, func(ctx context.Context) (R, error) {
			return fn(ctx, a)
		})
	}
}

// Wrap2 returns a memoized version of a two-argument function.
func Wrap2[A any, B any, R any](m *Memoizer[R], name string, fn func(context.Context, A, B) (R, error)) func(context.Context, A, B) (R, error) {
	return func(ctx context.Context, a A, b B) (R, error) {
		return m.Do(ctx, name, []any{a, b}, nil, func(ctx context.Context) (R, error) {
			return fn(ctx, a, b)
		})
	}
}
