package bus

import "context"

// Deleter is the slice of the cache interface Bind needs. Every cache in
// this module satisfies it.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Bind subscribes to the given keys on b and deletes each one from c when
// a remote instance publishes it, so the next local read refetches. The
// bindings live until ctx is canceled.
func Bind(ctx context.Context, b Bus, c Deleter, keys ...string) error {
	for _, key := range keys {
		ch, err := b.Subscribe(ctx, key)
		if err != nil {
			return err
		}
		go func(key string, ch <-chan Event) {
			for {
				select {
				case evt, ok := <-ch:
					if !ok {
						return
					}
					_ = c.Delete(ctx, evt.Key)
				case <-ctx.Done():
					return
				}
			}
		}(key, ch)
	}
	return nil
}
