package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	Operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_operations_total",
			Help: "Total number of allocation operations by operation and result",
		},
		[]string{"operation", "result"},
	)
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenancy_operation_duration_seconds",
			Help:    "Duration of allocation operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_events_total",
			Help: "Domain events by type and delivery outcome",
		},
		[]string{"type", "outcome"},
	)
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenancy_requests_total",
			Help: "API requests by transport, route and status code",
		},
		[]string{"transport", "route", "code"},
	)
	InvariantViolations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenancy_invariant_violations",
			Help: "Invariant violations found by the last reconciliation, by kind",
		},
		[]string{"kind"},
	)
)

func InitMetrics() {
	collectors := map[string]prometheus.Collector{
		"Operations":          Operations,
		"OperationDuration":   OperationDuration,
		"EventsPublished":     EventsPublished,
		"Requests":            Requests,
		"InvariantViolations": InvariantViolations,
	}
	for name, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
}
