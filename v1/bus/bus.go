package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

// Event is an invalidation notice for a single cache key.
type Event struct {
	Key string
}

// Bus propagates cache invalidation events between backend instances.
// Publish announces that a key changed; subscribers receive an Event per
// announcement. Delivery is best effort: a subscriber with a full channel
// misses the event rather than blocking the publisher.
type Bus interface {
	Publish(ctx context.Context, key string) error
	Subscribe(ctx context.Context, key string) (<-chan Event, error)
	Unsubscribe(ctx context.Context, key string, ch <-chan Event) error
}

// Metrics reports publish and delivery counts for a bus.
type Metrics struct {
	Published uint64
	Delivered uint64
}

// InMemoryBus is a single-process implementation of Bus, used standalone
// and in tests.
type InMemoryBus struct {
	mu        sync.Mutex
	subs      map[string][]chan Event
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewInMemoryBus returns a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs: make(map[string][]chan Event),
	}
}

// Publish implements Bus.Publish. The fan-out happens under the bus lock:
// Unsubscribe closes channels under the same lock, so a channel can never
// be closed while a send to it is in flight. The sends are non-blocking,
// so holding the lock is bounded by the subscriber count.
func (b *InMemoryBus) Publish(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	evt := Event{Key: key}
	b.mu.Lock()
	for _, ch := range b.subs[key] {
		select {
		case ch <- evt:
			b.delivered.Add(1)
		default:
		}
	}
	b.mu.Unlock()
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe. The subscription ends when ctx is
// canceled or Unsubscribe is called with the returned channel.
func (b *InMemoryBus) Subscribe(ctx context.Context, key string) (<-chan Event, error) {
	ch := make(chan Event, 1)
	b.mu.Lock()
	b.subs[key] = append(b.subs[key], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), key, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *InMemoryBus) Unsubscribe(ctx context.Context, key string, ch <-chan Event) error {
	b.mu.Lock()
	subs := b.subs[key]
	for i, c := range subs {
		if c == ch {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			b.subs[key] = subs
			close(c)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subs, key)
	}
	b.mu.Unlock()
	return nil
}

// Metrics returns the published and delivered counts.
func (b *InMemoryBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}
