package cache

import (
	"sync"
	"time"
)

// DefaultTTL is the default time to live applied by SetDefault and by the
// process-wide cache returned from Default.
const DefaultTTL = 300 * time.Second

var (
	defaultOnce  sync.Once
	defaultCache *InMemoryCache[any]
)

// Default returns the process-wide cache instance, creating it on first
// use with DefaultTTL. It lives for the lifetime of the process and there
// is no reset. Call sites that can take a cache as a dependency should
// prefer an explicitly constructed instance; Default exists for the ones
// that cannot.
func Default() *InMemoryCache[any] {
	defaultOnce.Do(func() {
		defaultCache = NewInMemory[any]()
	})
	return defaultCache
}
