package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// GetCounter tracks the number of Get operations.
	GetCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studycache_get_total",
		Help: "Total number of Get operations",
	})
	// SetCounter tracks the number of Set operations.
	SetCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studycache_set_total",
		Help: "Total number of Set operations",
	})
	// DeleteCounter tracks the number of Delete operations.
	DeleteCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "studycache_delete_total",
		Help: "Total number of cache deletions",
	})
	// CleanupGauge reports the number of entries removed by the last
	// expired-entry sweep.
	CleanupGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "studycache_cleanup_removed",
		Help: "Entries removed by the most recent CleanupExpired",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCacheMetrics registers studycache metrics on the provided registry.
func RegisterCacheMetrics(reg prometheus.Registerer) {
	reg.MustRegister(GetCounter, SetCounter, DeleteCounter, CleanupGauge)
}
