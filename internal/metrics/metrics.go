package metrics

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	claimsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_submitted_total",
			Help: "Total number of submitted expense claims",
		},
		[]string{"policy"}, // rule kind, or MANAGER_ONLY
	)

	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Total number of approval decisions by outcome",
		},
		[]string{"action", "result"},
	)

	claimsFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "claims_finalized_total",
			Help: "Total number of claims that reached a terminal status",
		},
		[]string{"status"},
	)

	concurrencyConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_concurrency_conflicts_total",
			Help: "Total number of decision attempts that lost an optimistic-lock race",
		},
	)

	websocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_clients",
			Help: "Number of connected websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(
		apiRequestsTotal,
		apiRequestDuration,
		claimsSubmittedTotal,
		decisionsTotal,
		claimsFinalizedTotal,
		concurrencyConflictsTotal,
		websocketClients,
	)
}

func RecordAPIRequest(method, path string, status int, seconds float64) {
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

func RecordClaimSubmitted(policy string) {
	claimsSubmittedTotal.WithLabelValues(policy).Inc()
}

func RecordDecision(action, result string) {
	decisionsTotal.WithLabelValues(action, result).Inc()
}

func RecordFinalized(status string) {
	claimsFinalizedTotal.WithLabelValues(status).Inc()
}

func RecordConcurrencyConflict() {
	concurrencyConflictsTotal.Inc()
}

func SetWebsocketClients(n int) {
	websocketClients.Set(float64(n))
}

// RegisterDB exposes connection pool statistics for db under the given name.
func RegisterDB(db *sql.DB, name string) error {
	return prometheus.Register(collectors.NewDBStatsCollector(db, name))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
