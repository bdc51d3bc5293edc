package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	// invalidationChannel is the single Redis channel all instances share.
	invalidationChannel = "studycache:invalidations"
	seenRetention       = time.Minute
)

// payload is the wire format on the invalidation channel. The nonce makes
// every publication unique so a subscriber that also publishes does not
// discard foreign events that happen to carry the same key.
type payload struct {
	Nonce string `json:"n"`
	Key   string `json:"k"`
}

// RedisBus implements Bus over Redis pub/sub. All instances publish to one
// channel; each instance fans messages out to its local per-key
// subscribers and discards nonces it has already seen.
type RedisBus struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[string][]chan Event
	seen   map[string]time.Time

	published atomic.Uint64
	delivered atomic.Uint64
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// NewRedisBus returns a RedisBus using the provided client and starts the
// receive loop. The subscription is established before returning so a
// Publish right after construction is not lost. Close stops the loop.
func NewRedisBus(client *redis.Client) (*RedisBus, error) {
	b := &RedisBus{
		client:  client,
		subs:    make(map[string][]chan Event),
		seen:    make(map[string]time.Time),
		closeCh: make(chan struct{}),
	}
	ps := client.Subscribe(context.Background(), invalidationChannel)
	if _, err := ps.Receive(context.Background()); err != nil {
		_ = ps.Close()
		return nil, err
	}
	b.wg.Add(2)
	go b.receive(ps)
	go b.cleanupSeen()
	return b, nil
}

// Publish implements Bus.Publish.
func (b *RedisBus) Publish(ctx context.Context, key string) error {
	data, err := json.Marshal(payload{Nonce: uuid.NewString(), Key: key})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, invalidationChannel, data).Err(); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *RedisBus) Subscribe(ctx context.Context, key string) (<-chan Event, error) {
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
func (b *RedisBus) Unsubscribe(ctx context.Context, key string, ch <-chan Event) error {
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

func (b *RedisBus) checkSeen(nonce string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.seen[nonce]; ok {
		return true
	}
	b.seen[nonce] = time.Now()
	return false
}

func (b *RedisBus) cleanupSeen() {
	defer b.wg.Done()
	ticker := time.NewTicker(seenRetention)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			now := time.Now()
			for n, at := range b.seen {
				if now.Sub(at) > seenRetention {
					delete(b.seen, n)
				}
			}
			b.mu.Unlock()
		case <-b.closeCh:
			return
		}
	}
}

// receive consumes the shared channel until Close. go-redis reconnects the
// pub/sub connection on its own, so a closed message channel only happens
// on shutdown.
func (b *RedisBus) receive(ps *redis.PubSub) {
	defer b.wg.Done()
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var p payload
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				continue
			}
			if b.checkSeen(p.Nonce) {
				continue
			}
			b.dispatch(p.Key)
		case <-b.closeCh:
			return
		}
	}
}

// dispatch fans out under the bus lock so Unsubscribe cannot close a
// channel mid-send.
func (b *RedisBus) dispatch(key string) {
	evt := Event{Key: key}
	b.mu.Lock()
	for _, c := range b.subs[key] {
		select {
		case c <- evt:
			b.delivered.Add(1)
		default:
		}
	}
	b.mu.Unlock()
}

// Metrics returns the published and delivered counts.
func (b *RedisBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}

// Close stops the receive loop and releases the subscription.
func (b *RedisBus) Close() error {
	close(b.closeCh)
	b.wg.Wait()
	return nil
}
