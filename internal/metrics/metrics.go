// Package metrics exposes Prometheus collectors for the scrape and sync pipelines.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	questionsTotal             *prometheus.CounterVec
	fetchDurationSeconds       prometheus.Histogram
	publishTotal               *prometheus.CounterVec
	publishDurationSeconds     prometheus.Histogram
	publishInFlight            prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		questionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qsync_questions_total",
				Help: "Questions processed, labeled by run mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qsync_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies including the render settle delay.",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 30},
			},
		)

		publishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qsync_publish_total",
				Help: "Workspace publish attempts, labeled by status.",
			},
			[]string{"status"},
		)

		publishDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qsync_publish_duration_seconds",
				Help:    "Histogram of workspace page-creation latencies.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		publishInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "qsync_publish_in_flight",
				Help: "Number of workspace calls currently holding an admission slot.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveQuestion counts one processed question.
func ObserveQuestion(mode, outcome string) {
	Init()
	questionsTotal.WithLabelValues(mode, outcome).Inc()
}

// ObserveFetch records how long a page fetch took.
func ObserveFetch(duration time.Duration) {
	Init()
	fetchDurationSeconds.Observe(duration.Seconds())
}

// ObservePublish counts a publish attempt and, when it reached the workspace, its latency.
func ObservePublish(status string, duration time.Duration) {
	Init()
	publishTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		publishDurationSeconds.Observe(duration.Seconds())
	}
}

// IncPublishInFlight increments the in-flight publish gauge.
func IncPublishInFlight() {
	Init()
	publishInFlight.Inc()
}

// DecPublishInFlight decrements the in-flight publish gauge.
func DecPublishInFlight() {
	Init()
	publishInFlight.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
