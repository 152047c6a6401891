package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	cacheHit   = "hit"
	cacheMiss  = "miss"
	cacheError = "error"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "concierge",
		Subsystem: "dashboard",
		Name:      "cache_total",
		Help:      "Dashboard cache lookups by role and result (hit/miss/error)",
	}, []string{"role", "result"})

	buildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "concierge",
		Subsystem: "dashboard",
		Name:      "build_duration_seconds",
		Help:      "Time to fan out and merge one dashboard",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"role"})

	degradedFields = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "concierge",
		Subsystem: "dashboard",
		Name:      "degraded_fields_total",
		Help:      "Dashboard fields rendered null because their service was down",
	}, []string{"role", "field"})
)
