// Package metrics holds the prometheus collectors of the service. Collectors are
// registered on the registry passed to New, never on the global default.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CacheHits                 *prometheus.CounterVec
	CacheMisses               *prometheus.CounterVec
	CacheInvalidationFailures prometheus.Counter
	OrdersCreated             prometheus.Counter
	OrdersRejected            *prometheus.CounterVec
	TracklistLookupFailures   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status"}),
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache hits by key namespace",
		}, []string{"namespace"}),
		CacheMisses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache misses by key namespace",
		}, []string{"namespace"}),
		CacheInvalidationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cache_invalidation_failures_total",
			Help: "Post-write cache invalidations that returned an error",
		}),
		OrdersCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders committed",
		}),
		OrdersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Orders rejected by business rules",
		}, []string{"reason"}),
		TracklistLookupFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tracklist_lookup_failures_total",
			Help: "Tracklist lookups that failed after all retries",
		}),
	}
}

// NewNop returns collectors on a throwaway registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
