package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reviewRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	reviewRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reviewledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	reviewDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewledger_gate_decisions_total",
		Help: "Ledger gate decisions by outcome (accepted, duplicate, invalid).",
	}, []string{"decision"})

	reviewVerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewledger_verdicts_total",
		Help: "Scoring verdicts by label (real, fake).",
	}, []string{"label"})

	reviewLedgerAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reviewledger_ledger_appends_total",
		Help: "Total records appended across all ledgers.",
	})

	reviewActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reviewledger_sessions_active",
		Help: "Number of sessions currently holding a ledger.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		reviewRequestsTotal.WithLabelValues(method, path, status).Inc()
		reviewRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerAppend records a ledger append.
func RecordLedgerAppend() {
	reviewLedgerAppendsTotal.Inc()
}

// SetActiveSessions sets the active session gauge.
func SetActiveSessions(n float64) {
	reviewActiveSessions.Set(n)
}

// MetricsRecorder feeds review.Service outcomes into Prometheus.
type MetricsRecorder struct{}

// RecordDecision implements review.Recorder.
func (MetricsRecorder) RecordDecision(decision string) {
	reviewDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordVerdict implements review.Recorder.
func (MetricsRecorder) RecordVerdict(label string) {
	reviewVerdictsTotal.WithLabelValues(label).Inc()
}
