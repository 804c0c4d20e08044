package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmux_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatmux_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatmux_provider_request_duration_seconds",
		Help:    "Duration of upstream provider requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode", "kind", "status"})

	cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmux_cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"cache"})

	cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmux_cache_misses_total",
		Help: "Total number of cache misses",
	}, []string{"cache"})

	cacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmux_cache_evictions_total",
		Help: "Entries removed by the periodic sweep",
	}, []string{"cache"})

	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatmux_rate_limit_exceeded_total",
		Help: "Total number of rejected admissions",
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatmux_active_streams",
		Help: "Number of in-flight streaming responses",
	})

	streamOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatmux_stream_outcomes_total",
		Help: "Streaming responses by terminal event",
	}, []string{"outcome"})

	persistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatmux_persistence_failures_total",
		Help: "Session writes that failed on the async path",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordHTTPRequest records a served request
func (m *Metrics) RecordHTTPRequest(route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(route, fmt.Sprint(status)).Inc()
	httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordProviderRequest records an upstream call
func (m *Metrics) RecordProviderRequest(mode, kind, status string, duration time.Duration) {
	providerRequestDuration.WithLabelValues(mode, kind, status).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(cache string) {
	cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(cache string) {
	cacheMisses.WithLabelValues(cache).Inc()
}

// RecordEvictions records entries removed by a sweep
func (m *Metrics) RecordEvictions(cache string, count int) {
	cacheEvictions.WithLabelValues(cache).Add(float64(count))
}

// RecordRateLimitExceeded records a rejected admission
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// StreamStarted increments the active streams gauge
func (m *Metrics) StreamStarted() {
	activeStreams.Inc()
}

// StreamFinished decrements the gauge and counts the outcome
func (m *Metrics) StreamFinished(outcome string) {
	activeStreams.Dec()
	streamOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPersistenceFailure counts a failed async session write
func (m *Metrics) RecordPersistenceFailure() {
	persistenceFailures.Inc()
}

// NewMetricsServer builds the metrics HTTP server
func NewMetricsServer(port int, path string) *http.Server {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
