package memo

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studycompanion/studycache/v1/cache"
)

func TestKeyDeterministic(t *testing.T) {
	a := Key("practice", "bank", []any{"math", 2}, map[string]any{"max": 5, "min": 2})
	b := Key("practice", "bank", []any{"math", 2}, map[string]any{"min": 2, "max": 5})
	if a != b {
		t.Fatalf("kwargs ordering changed the key: %q vs %q", a, b)
	}
	want := "practice:bank:math,2:max=5,min=2"
	if a != want {
		t.Fatalf("got %q, want %q", a, want)
	}
}

func TestKeyEmptySegments(t *testing.T) {
	if got, want := Key("p", "fn", nil, nil), "p:fn::"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestKeyDiffersByArguments(t *testing.T) {
	a := Key("p", "fn", []any{1}, nil)
	b := Key("p", "fn", []any{2}, nil)
	if a == b {
		t.Fatalf("different args produced the same key")
	}
}

func TestMemoizerHitSkipsComputation(t *testing.T) {
	ctx := context.Background()
	m := New[int](cache.NewInMemory[int](), "stats", time.Minute)

	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := m.Do(ctx, "score", []any{"s1"}, map[string]any{"subject": "math"}, compute)
		if err != nil {
			t.Fatalf("Do: %v", err)
		}
		if v != 42 {
			t.Fatalf("expected 42, got %d", v)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one computation, got %d", n)
	}

	// a different argument is a different key and a fresh invocation
	if _, err := m.Do(ctx, "score", []any{"s2"}, map[string]any{"subject": "math"}, compute); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected second computation for new args, got %d", n)
	}
}

func TestMemoizerErrorPassThroughNotCached(t *testing.T) {
	ctx := context.Background()
	m := New[string](cache.NewInMemory[string](), "qa", time.Minute)

	boom := errors.New("upstream unavailable")
	var calls atomic.Int32
	failing := func(ctx context.Context) (string, error) {
		calls.Add(1)
		if calls.Load() < 3 {
			return "", boom
		}
		return "answer", nil
	}

	for i := 0; i < 2; i++ {
		if _, err := m.Do(ctx, "ask", []any{"q7"}, nil, failing); !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
	}
	v, err := m.Do(ctx, "ask", []any{"q7"}, nil, failing)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if v != "answer" {
		t.Fatalf("expected answer, got %q", v)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 invocations (errors uncached), got %d", n)
	}

	// success is cached
	if _, err := m.Do(ctx, "ask", []any{"q7"}, nil, failing); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected cached success, got %d invocations", n)
	}
}

func TestMemoizerCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	m := New[int](cache.NewInMemory[int](), "p", time.Minute)

	var calls atomic.Int32
	slow := func(ctx context.Context) (int, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, err := m.Do(ctx, "slow", nil, nil, slow); err != nil || v != 7 {
				t.Errorf("Do: v=%d err=%v", v, err)
			}
		}()
	}
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one collapsed computation, got %d", n)
	}
}

func TestMemoizerForget(t *testing.T) {
	ctx := context.Background()
	m := New[int](cache.NewInMemory[int](), "p", time.Minute)

	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return int(calls.Load()), nil
	}

	if _, err := m.Do(ctx, "fn", []any{1}, nil, compute); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if err := m.Forget(ctx, "fn", []any{1}, nil); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	v, err := m.Do(ctx, "fn", []any{1}, nil, compute)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if v != 2 {
		t.Fatalf("expected recompute after Forget, got %d", v)
	}
}

func TestMemoizerKeyOverlapsManualKey(t *testing.T) {
	ctx := context.Background()
	c := cache.NewInMemory[int]()
	m := New[int](c, "rating", time.Minute)

	var calls atomic.Int32
	compute := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 5, nil
	}

	if _, err := m.Do(ctx, "load", []any{"s1"}, nil, compute); err != nil {
		t.Fatalf("Do: %v", err)
	}
	// a handler that knows the documented format can invalidate directly
	if err := c.Delete(ctx, "rating:load:s1:"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.Do(ctx, "load", []any{"s1"}, nil, compute); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("manual delete did not invalidate the memoized key (calls=%d)", n)
	}
}

func TestWrap1(t *testing.T) {
	ctx := context.Background()
	m := New[string](cache.NewInMemory[string](), "summary", time.Minute)

	var calls atomic.Int32
	load := func(ctx context.Context, subjectID string) (string, error) {
		calls.Add(1)
		return "summary for " + subjectID, nil
	}
	cached := Wrap1(m, "subject", load)

	for i := 0; i < 2; i++ {
		v, err := cached(ctx, "math")
		if err != nil {
			t.Fatalf("cached: %v", err)
		}
		if v != "summary for math" {
			t.Fatalf("unexpected value %q", v)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one invocation, got %d", n)
	}
	if _, err := cached(ctx, "hist"); err != nil {
		t.Fatalf("cached: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected fresh invocation for new argument, got %d", n)
	}
}

func TestWrap2(t *testing.T) {
	ctx := context.Background()
	m := New[int](cache.NewInMemory[int](), "rating", time.Minute)

	var calls atomic.Int32
	load := func(ctx context.Context, studentID, subjectID string) (int, error) {
		calls.Add(1)
		return 80, nil
	}
	cached := Wrap2(m, "student_subject", load)

	if _, err := cached(ctx, "s1", "math"); err != nil {
		t.Fatalf("cached: %v", err)
	}
	if _, err := cached(ctx, "s1", "math"); err != nil {
		t.Fatalf("cached: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one invocation, got %d", n)
	}
}
