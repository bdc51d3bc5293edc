package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	nats "github.com/nats-io/nats.go"
)

// subjectPrefix namespaces invalidation traffic on a shared NATS cluster.
const subjectPrefix = "studycache.inval."

type natsSubscription struct {
	sub   *nats.Subscription
	chans []chan Event
}

// NATSBus implements Bus using a NATS connection. Each key maps to its own
// subject; publications carry a unique id so redelivered messages are
// processed once per instance.
type NATSBus struct {
	conn      *nats.Conn
	mu        sync.Mutex
	subs      map[string]*natsSubscription
	processed map[string]struct{}
	published atomic.Uint64
	delivered atomic.Uint64
}

// NewNATSBus returns a new NATSBus using the provided connection. The
// caller owns the connection; go-nats handles reconnects.
func NewNATSBus(conn *nats.Conn) *NATSBus {
	return &NATSBus{
		conn:      conn,
		subs:      make(map[string]*natsSubscription),
		processed: make(map[string]struct{}),
	}
}

// natsSubject maps a cache key to its subject. Cache keys are colon
// delimited and colons are legal in subject tokens, so the key is used
// verbatim under the prefix.
func natsSubject(key string) string {
	return subjectPrefix + key
}

// Publish implements Bus.Publish.
func (b *NATSBus) Publish(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if err := b.conn.Publish(natsSubject(key), []byte(uuid.NewString())); err != nil {
		return err
	}
	b.published.Add(1)
	return nil
}

// Subscribe implements Bus.Subscribe.
func (b *NATSBus) Subscribe(ctx context.Context, key string) (<-chan Event, error) {
	ch := make(chan Event, 1)
	b.mu.Lock()
	sub := b.subs[key]
	if sub == nil {
		ns, err := b.conn.Subscribe(natsSubject(key), b.handler(key))
		if err != nil {
			b.mu.Unlock()
			return nil, err
		}
		sub = &natsSubscription{sub: ns}
		b.subs[key] = sub
	}
	sub.chans = append(sub.chans, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = b.Unsubscribe(context.Background(), key, ch)
	}()
	return ch, nil
}

// Unsubscribe implements Bus.Unsubscribe.
func (b *NATSBus) Unsubscribe(ctx context.Context, key string, ch <-chan Event) error {
	b.mu.Lock()
	sub := b.subs[key]
	if sub == nil {
		b.mu.Unlock()
		return nil
	}
	for i, c := range sub.chans {
		if c == ch {
			sub.chans[i] = sub.chans[len(sub.chans)-1]
			sub.chans = sub.chans[:len(sub.chans)-1]
			close(c)
			break
		}
	}
	if len(sub.chans) == 0 {
		delete(b.subs, key)
		b.mu.Unlock()
		return sub.sub.Unsubscribe()
	}
	b.mu.Unlock()
	return nil
}

func (b *NATSBus) handler(key string) nats.MsgHandler {
	return func(m *nats.Msg) {
		id := string(m.Data)
		b.mu.Lock()
		if _, ok := b.processed[id]; ok {
			b.mu.Unlock()
			return
		}
		b.processed[id] = struct{}{}
		sub := b.subs[key]
		if sub == nil {
			b.mu.Unlock()
			return
		}
		// fan out under the lock so Unsubscribe cannot close a
		// channel mid-send
		evt := Event{Key: key}
		for _, c := range sub.chans {
			select {
			case c <- evt:
				b.delivered.Add(1)
			default:
			}
		}
		b.mu.Unlock()
	}
}

// Metrics returns the published and delivered counts.
func (b *NATSBus) Metrics() Metrics {
	return Metrics{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
	}
}
