// Package metrics exposes the ledger's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "donationledger"

// Donation outcomes used as the "outcome" label.
const (
	OutcomeRecorded = "recorded"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	donations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "donations",
			Name:      "submissions_total",
			Help:      "Donation submissions by outcome.",
		},
		[]string{"outcome"},
	)

	donatedQuantity = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "donations",
			Name:      "quantity_total",
			Help:      "Sum of quantities of newly recorded donations.",
		},
	)

	donationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "donations",
			Name:      "record_duration_seconds",
			Help:      "Duration of the donation unit of work.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"outcome"},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs by success.",
		},
		[]string{"success"},
	)

	reconcileDiscrepancies = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_discrepancies",
			Help:      "Needs whose fulfilled counter disagreed with their donations at the last run.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		donations,
		donatedQuantity,
		donationDuration,
		reconcileRuns,
		reconcileDiscrepancies,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordDonation counts one donation submission. quantity is only added for
// newly recorded donations.
func RecordDonation(outcome string, quantity int, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	donations.WithLabelValues(outcome).Inc()
	donationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome == OutcomeRecorded && quantity > 0 {
		donatedQuantity.Add(float64(quantity))
	}
}

// RecordReconcile stores the result of a reconciliation run. A failed run
// leaves the last discrepancy count in place.
func RecordReconcile(discrepancies int, success bool) {
	reconcileRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
	if success {
		reconcileDiscrepancies.Set(float64(discrepancies))
	}
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

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
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

// Route words kept verbatim in the path label; every other segment is an ID.
var routeWords = map[string]bool{
	"api":           true,
	"admin":         true,
	"healthz":       true,
	"session":       true,
	"categories":    true,
	"project-count": true,
	"projects":      true,
	"progress":      true,
	"needs":         true,
	"donations":     true,
	"organizations": true,
	"transition":    true,
	"image":         true,
	"reconcile":     true,
	"webhooks":      true,
	"stripe":        true,
}

// canonicalPath keeps label cardinality bounded by replacing IDs with ":id".
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}

	parts := strings.Split(trimmed, "/")
	for i, part := range parts {
		if !routeWords[part] {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
