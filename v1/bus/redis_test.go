package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
)

func newRedisBus(t *testing.T) (*RedisBus, context.Context) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b, err := NewRedisBus(client)
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	ctx := context.Background()
	t.Cleanup(func() {
		_ = b.Close()
		_ = client.Close()
		mr.Close()
	})
	return b, ctx
}

func TestRedisBusPublishSubscribeFlowAndMetrics(t *testing.T) {
	b, ctx := newRedisBus(t)
	ch, err := b.Subscribe(ctx, "user:1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(ctx, "user:1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case evt := <-ch:
		if evt.Key != "user:1" {
			t.Fatalf("expected user:1, got %q", evt.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for publish")
	}
	m := b.Metrics()
	if m.Published != 1 {
		t.Fatalf("expected published 1, got %d", m.Published)
	}
	if m.Delivered != 1 {
		t.Fatalf("expected delivered 1, got %d", m.Delivered)
	}
}

func TestRedisBusKeysAreIndependent(t *testing.T) {
	b, ctx := newRedisBus(t)
	mathCh, err := b.Subscribe(ctx, "subject:math")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Publish(ctx, "subject:hist"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case evt := <-mathCh:
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisBusDispatchDuringUnsubscribeChurn(t *testing.T) {
	b, ctx := newRedisBus(t)

	done := make(chan struct{})
	var publisher sync.WaitGroup
	publisher.Add(1)
	go func() {
		defer publisher.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if err := b.Publish(ctx, "user:1"); err != nil {
				t.Errorf("publish: %v", err)
				return
			}
		}
	}()

	for j := 0; j < 200; j++ {
		ch, err := b.Subscribe(ctx, "user:1")
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if err := b.Unsubscribe(ctx, "user:1", ch); err != nil {
			t.Fatalf("unsubscribe: %v", err)
		}
	}

	close(done)
	publisher.Wait()
}

func TestRedisBusUnsubscribe(t *testing.T) {
	b, ctx := newRedisBus(t)
	ch, err := b.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Unsubscribe(ctx, "k", ch); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}
