// Package metrics exposes Prometheus collectors for the rank tracker.
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
	refreshesTotal         *prometheus.CounterVec
	refreshDurationSeconds *prometheus.HistogramVec
	retryQueueSize         prometheus.Gauge
	statsRecomputesTotal   prometheus.Counter
	providerRequestsTotal  *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		refreshesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranklens_refreshes_total",
				Help: "Total keyword refresh attempts, labeled by provider and outcome.",
			},
			[]string{"provider", "status"},
		)

		refreshDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranklens_refresh_duration_seconds",
				Help:    "Histogram of per-keyword refresh latencies, labeled by provider.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		)

		retryQueueSize = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ranklens_retry_queue_size",
				Help: "Number of keyword IDs currently in the retry queue.",
			},
		)

		statsRecomputesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ranklens_domain_stats_recomputes_total",
				Help: "Total domain stats recomputations.",
			},
		)

		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranklens_provider_requests_total",
				Help: "Total provider API calls, labeled by provider and outcome class.",
			},
			[]string{"provider", "class"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ranklens_http_requests_total",
				Help: "Total HTTP requests, labeled by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		)

		httpDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ranklens_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRefresh records one keyword refresh attempt.
func ObserveRefresh(provider, status string, duration time.Duration) {
	if refreshesTotal == nil {
		return
	}
	refreshesTotal.WithLabelValues(provider, status).Inc()
	refreshDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// SetRetryQueueSize updates the retry queue gauge.
func SetRetryQueueSize(n int) {
	if retryQueueSize == nil {
		return
	}
	retryQueueSize.Set(float64(n))
}

// ObserveStatsRecompute increments the stats recompute counter.
func ObserveStatsRecompute() {
	if statsRecomputesTotal == nil {
		return
	}
	statsRecomputesTotal.Inc()
}

// ObserveProviderRequest records one provider API call.
func ObserveProviderRequest(provider, class string) {
	if providerRequestsTotal == nil {
		return
	}
	providerRequestsTotal.WithLabelValues(provider, class).Inc()
}

// ObserveHTTPRequest records one handled HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
