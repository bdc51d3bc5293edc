package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/studycompanion/studycache/v1/cache"
)

func TestRegisterCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCacheMetrics(reg)
	GetCounter.Inc()
	SetCounter.Inc()
	DeleteCounter.Inc()
	CleanupGauge.Set(3)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) < 4 {
		t.Fatalf("expected metrics registered")
	}
}

func TestRegisterCacheMetricsDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterCacheMetrics(reg)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	RegisterCacheMetrics(reg)
}

func TestInstrumentCountsOperations(t *testing.T) {
	ctx := context.Background()
	c := Instrument[string](cache.NewInMemory[string]())

	gets := testutil.ToFloat64(GetCounter)
	sets := testutil.ToFloat64(SetCounter)
	dels := testutil.ToFloat64(DeleteCounter)

	if err := c.Set(ctx, "user:1", "alice", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "user:1"); err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if _, _, err := c.Get(ctx, "user:2"); err != nil {
		t.Fatalf("get miss: %v", err)
	}
	if err := c.Delete(ctx, "user:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := testutil.ToFloat64(GetCounter) - gets; got != 2 {
		t.Fatalf("expected 2 gets counted, got %v", got)
	}
	if got := testutil.ToFloat64(SetCounter) - sets; got != 1 {
		t.Fatalf("expected 1 set counted, got %v", got)
	}
	if got := testutil.ToFloat64(DeleteCounter) - dels; got != 1 {
		t.Fatalf("expected 1 delete counted, got %v", got)
	}
}

func TestInstrumentCleanupSetsGauge(t *testing.T) {
	ctx := context.Background()
	c := Instrument[int](cache.NewInMemory[int]())
	if err := c.Set(ctx, "a", 1, -time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "b", 2, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if removed := c.CleanupExpired(); removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if got := testutil.ToFloat64(CleanupGauge); got != 1 {
		t.Fatalf("expected gauge 1, got %v", got)
	}
}
