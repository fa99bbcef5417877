// Package metrics exposes the Prometheus collectors for the escrow service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "escrow_service",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_service",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escrow_service",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	reconcileTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_service",
			Subsystem: "monitor",
			Name:      "reconcile_ticks_total",
			Help:      "Total number of reconciliation ticks by outcome.",
		},
		[]string{"result"},
	)

	milestones = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_service",
			Subsystem: "monitor",
			Name:      "milestones_total",
			Help:      "Total number of action-log milestones appended.",
		},
		[]string{"type"},
	)

	terminalPayments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_service",
			Subsystem: "monitor",
			Name:      "terminal_payments_total",
			Help:      "Total number of payments that reached a terminal status.",
		},
		[]string{"status", "type"},
	)

	activeMonitors = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "escrow_service",
			Subsystem: "monitor",
			Name:      "active_polls",
			Help:      "Number of payments currently being polled.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		reconcileTicks,
		milestones,
		terminalPayments,
		activeMonitors,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Tick outcome labels.
const (
	TickOK            = "ok"
	TickFetchError    = "fetch_error"
	TickRecordMissing = "record_missing"
	TickStoreError    = "store_error"
	TickPanic         = "panic"
)

// RecordTick records the outcome of one reconciliation tick.
func RecordTick(result string) {
	reconcileTicks.WithLabelValues(result).Inc()
}

// RecordMilestone records an appended action-log milestone.
func RecordMilestone(milestoneType string) {
	milestones.WithLabelValues(milestoneType).Inc()
}

// RecordTerminalPayment records a payment reaching a terminal status.
func RecordTerminalPayment(status, paymentType string) {
	terminalPayments.WithLabelValues(status, paymentType).Inc()
}

// SetActiveMonitors publishes the size of the poll registry.
func SetActiveMonitors(n int) {
	activeMonitors.Set(float64(n))
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses record IDs out of paths to keep label cardinality
// bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "jobs":
		if len(parts) > 1 {
			return "/jobs/:id"
		}
		return "/jobs"
	case "payments":
		if len(parts) > 2 {
			return "/payments/:id/" + parts[2]
		}
		if len(parts) == 2 {
			return "/payments/" + parts[1]
		}
		return "/payments"
	default:
		return "/" + parts[0]
	}
}
