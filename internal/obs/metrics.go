package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization decisions by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	caseLockWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "case_lock_wait_seconds",
		Help:    "Time spent waiting for per-case locks.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2, 5},
	})

	auditEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit events recorded, by outcome and delivery path.",
		},
		[]string{"outcome", "path"},
	)

	auditQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audit_queue_depth",
		Help: "Audit events waiting in the async queue.",
	})

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Durable audit writes that exhausted retries.",
	})
)

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			authzDecisions, caseLockWait,
			auditEvents, auditQueueDepth, auditWriteFailures,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAuthzDecision counts one authorization decision.
func ObserveAuthzDecision(operation string, allowed bool) {
	outcome := "deny"
	if allowed {
		outcome = "allow"
	}
	authzDecisions.WithLabelValues(operation, outcome).Inc()
}

// ObserveLockWait records time spent acquiring a per-case lock.
func ObserveLockWait(d time.Duration) {
	caseLockWait.Observe(d.Seconds())
}

// ObserveAuditEvent counts one recorded audit event.
func ObserveAuditEvent(outcome, path string) {
	auditEvents.WithLabelValues(outcome, path).Inc()
}

// SetAuditQueueDepth tracks the async audit queue backlog.
func SetAuditQueueDepth(n int) {
	auditQueueDepth.Set(float64(n))
}

// ObserveAuditWriteFailure counts a durable audit write that gave up.
func ObserveAuditWriteFailure() {
	auditWriteFailures.Inc()
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an HTTP handler with request rate, latency and
// in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}
