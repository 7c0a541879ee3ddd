// Package metrics exposes Prometheus collectors for the recall ingestion service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestRunsTotal            *prometheus.CounterVec
	ingestRunDurationSeconds   prometheus.Histogram
	sourceFetchTotal           *prometheus.CounterVec
	sourceCandidatesTotal      *prometheus.CounterVec
	candidatesTotal            *prometheus.CounterVec
	upstreamRequestsTotal      *prometheus.CounterVec
	retryAttemptsTotal         *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_ingest_runs_total",
				Help: "Total number of ingestion runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ingestRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "recall_ingest_run_duration_seconds",
				Help:    "Histogram of ingestion run durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		sourceFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_source_fetch_total",
				Help: "Total number of source adapter fetches, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		sourceCandidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_source_candidates_total",
				Help: "Total number of candidates produced, labeled by source.",
			},
			[]string{"source"},
		)

		candidatesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_candidates_total",
				Help: "Total number of candidates processed, labeled by result.",
			},
			[]string{"result"},
		)

		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_upstream_requests_total",
				Help: "Total number of upstream HTTP requests, labeled by host and code.",
			},
			[]string{"host", "code"},
		)

		retryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recall_retry_attempts_total",
				Help: "Total number of retried upstream calls, labeled by operation.",
			},
			[]string{"operation"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recall_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveRun records the outcome and duration of an ingestion run.
func ObserveRun(outcome string, duration time.Duration) {
	Init()
	ingestRunsTotal.WithLabelValues(outcome).Inc()
	ingestRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveSourceFetch records one adapter fetch and the candidates it produced.
func ObserveSourceFetch(source string, success bool, count int) {
	Init()
	status := "success"
	if !success {
		status = "failure"
	}
	sourceFetchTotal.WithLabelValues(source, status).Inc()
	if count > 0 {
		sourceCandidatesTotal.WithLabelValues(source).Add(float64(count))
	}
}

// ObserveCandidate increments the per-result candidate counter.
func ObserveCandidate(result string) {
	Init()
	candidatesTotal.WithLabelValues(result).Inc()
}

// ObserveUpstreamRequest records an upstream call; code 0 means a transport error.
func ObserveUpstreamRequest(rawURL string, code int) {
	Init()
	label := strconv.Itoa(code)
	if code == 0 {
		label = "error"
	}
	upstreamRequestsTotal.WithLabelValues(SanitizeHost(rawURL), label).Inc()
}

// ObserveRetry increments the retry counter for an operation.
func ObserveRetry(operation string) {
	Init()
	retryAttemptsTotal.WithLabelValues(operation).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
