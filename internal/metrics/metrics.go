// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dishly_backend_requests_total",
			Help: "Requests sent to the platform backend by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	BackendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dishly_backend_request_duration_seconds",
			Help:    "Latency of platform backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dishly_backend_circuit_state",
			Help: "Backend circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	LiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dishly_live_sessions",
			Help: "Open live sessions by client platform",
		},
		[]string{"platform"},
	)

	OptimisticSettlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dishly_optimistic_settlements_total",
			Help: "Settled optimistic actions by kind and outcome (confirmed or rolled_back)",
		},
		[]string{"kind", "outcome"},
	)

	PlaybackPreemptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dishly_playback_preemptions_total",
			Help: "Players paused because another player started",
		},
	)

	PlayerFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dishly_player_fallbacks_total",
			Help: "Players switched to the native fallback after a fatal engine error",
		},
	)

	SessionExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dishly_session_expirations_total",
			Help: "Live sessions logged out by the expiry monitor",
		},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dishly_rate_limited_requests_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)
)
