package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "rides_requested_total", Help: "Total ride requests accepted by the engine"})
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "ride_transitions_total", Help: "Ride lifecycle transitions by target status and outcome"},
		[]string{"to", "outcome"},
	)
	DispatchCandidates = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch",
		Name:      "dispatch_candidates",
		Help:      "Drivers found within the dispatch radius per request",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32},
	})

	EmitsDelivered = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "emits_delivered_total", Help: "Events delivered to at least one live connection"})
	EmitsDropped   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "emits_dropped_total", Help: "Events addressed to identities with no live connection"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "ws_connections", Help: "Live authenticated WebSocket connections"})
	AuthFailures  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "auth_failures_total", Help: "Connections rejected at credential verification"})

	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_available", Help: "Drivers currently marked available"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
