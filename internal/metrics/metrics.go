package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outbound calls to the fleet API, by endpoint class, method and status code.
	FleetRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_api_requests_total",
			Help: "Total number of fleet API requests made (by endpoint and method).",
		},
		[]string{"endpoint", "method", "status"},
	)

	FleetRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_api_request_duration_seconds",
			Help:    "Duration of fleet API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint", "method"},
	)

	// Token lifecycle: kind = authenticate | refresh, result = ok | error.
	TokenOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_token_operations_total",
			Help: "Sign-in and refresh attempts against the fleet API.",
		},
		[]string{"kind", "result"},
	)

	// 401-triggered recoveries, by how they ended.
	TokenRecoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_token_recoveries_total",
			Help: "Recoveries performed after an unauthorized response.",
		},
		[]string{"outcome"}, // refreshed | reauthenticated | failed | reused
	)

	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages processed.",
		},
		[]string{"subject", "result"},
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	SecretsCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "secrets_cache_access_total",
			Help: "Number of cache hits/misses in secret cache.",
		},
		[]string{"result"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_errors_total",
			Help: "Count of errors by component.",
		},
		[]string{"component", "reason"},
	)

	LastPollTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_last_poll_timestamp",
			Help: "Timestamp (unix seconds) of the last successful telemetry poll.",
		},
		[]string{"component"},
	)
)

// ObserveDuration records the time elapsed since start on a histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncFleetRequest(endpoint, method, status string) {
	FleetRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

func IncTokenOperation(kind, result string) {
	TokenOperations.WithLabelValues(kind, result).Inc()
}

func IncTokenRecovery(outcome string) {
	TokenRecoveries.WithLabelValues(outcome).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncCacheHit(result string) {
	SecretsCacheHits.WithLabelValues(result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastPoll(component string, t time.Time) {
	LastPollTimestamp.WithLabelValues(component).Set(float64(t.Unix()))
}
