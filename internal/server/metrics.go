package server

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"csr-intake/internal/intake"
)

// metrics holds the collectors of one server. Each server owns its registry
// so several can run in one process.
type metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	submissions        *prometheus.CounterVec
	attachmentWarnings prometheus.Counter
	attachmentBytes    prometheus.Histogram
}

func newMetrics(db *sql.DB) *metrics {
	reg := prometheus.NewRegistry()

	m := &metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csr",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "csr",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "csr",
			Name:      "submissions_total",
			Help:      "Processed form submissions by disposition.",
		}, []string{"disposition"}),
		attachmentWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "csr",
			Name:      "attachment_write_failures_total",
			Help:      "Attachments dropped because they could not be stored.",
		}),
		attachmentBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "csr",
			Name:      "attachment_bytes",
			Help:      "Size of attachments referenced by committed requests.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.submissions,
		m.attachmentWarnings,
		m.attachmentBytes,
	)
	if db != nil {
		reg.MustRegister(collectors.NewDBStatsCollector(db, "requests"))
	}

	// Pre-create the series so dashboards see zeros before the first post.
	for _, d := range []intake.Disposition{
		intake.DispositionSuccess,
		intake.DispositionValidationError,
		intake.DispositionStorageError,
	} {
		m.submissions.WithLabelValues(string(d))
	}

	return m
}

func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) observeOutcome(out intake.Outcome) {
	m.submissions.WithLabelValues(string(out.Disposition)).Inc()
	if out.Warned() {
		m.attachmentWarnings.Inc()
	}
	if out.Succeeded() && out.StoredFile != "" {
		m.attachmentBytes.Observe(float64(out.StoredBytes))
	}
}
