package downstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "concierge",
		Subsystem: "downstream",
		Name:      "requests_total",
		Help:      "Downstream calls by service and outcome (status=healthy/down)",
	}, []string{"service", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "concierge",
		Subsystem: "downstream",
		Name:      "request_duration_seconds",
		Help:      "Downstream call latency, timeouts included",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"service"})
)

func observe(service string, r Result) {
	requestsTotal.WithLabelValues(service, string(r.Status)).Inc()
	requestDuration.WithLabelValues(service).Observe(r.Duration.Seconds())
}
