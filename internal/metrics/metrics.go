package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockyard_cache_requests_total",
			Help: "Cache lookups by operation and result (hit, miss, error)",
		},
		[]string{"operation", "result"},
	)

	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockyard_cache_invalidated_keys_total",
			Help: "Total number of cache keys removed by invalidation",
		},
	)

	// Engine metrics
	EngineCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockyard_engine_calls_total",
			Help: "Remote engine calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	EngineCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dockyard_engine_call_duration_seconds",
			Help:    "Remote engine call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dockyard_reconciliation_duration_seconds",
			Help:    "Time taken to reconcile a host listing into metadata",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainersMarkedStopped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockyard_containers_marked_stopped_total",
			Help: "Metadata records flipped to not running because the container vanished",
		},
	)

	HostsUnreachable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dockyard_host_unreachable_total",
			Help: "Reads that degraded to an empty result because the host was unreachable",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dockyard_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)
)

func init() {
	prometheus.MustRegister(CacheRequests)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(EngineCalls)
	prometheus.MustRegister(EngineCallDuration)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ContainersMarkedStopped)
	prometheus.MustRegister(HostsUnreachable)
	prometheus.MustRegister(APIRequestsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed seconds in h.
func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed seconds in h under labels.
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
