package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Indexing metrics
	IndexingRuns     *prometheus.CounterVec
	IndexingDuration prometheus.Histogram

	// Search metrics
	SearchRequests *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec

	// Upload metrics
	Uploads *prometheus.CounterVec

	// Cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Artifact metrics
	ArtifactGeneration prometheus.Gauge
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	// Create a new registry for this collector
	registry := prometheus.NewRegistry()

	// Create metrics (not auto-registered)
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	indexingRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexing_runs_total",
			Help:      "Total number of indexing runs by outcome",
		},
		[]string{"status"},
	)

	indexingDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "indexing_run_duration_seconds",
			Help:      "Indexing run duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	searchRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of search requests by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	searchDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search request duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"mode"},
	)

	uploads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of upload attempts by outcome",
		},
		[]string{"status"},
	)

	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
	)

	cacheMisses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
	)

	artifactGeneration := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_generation",
			Help:      "Generation counter of the currently served artifacts",
		},
	)

	// Register all metrics with the registry
	registry.MustRegister(
		httpRequests,
		httpDuration,
		indexingRuns,
		indexingDuration,
		searchRequests,
		searchDuration,
		uploads,
		cacheHits,
		cacheMisses,
		artifactGeneration,
	)

	return &Collector{
		registry:           registry,
		HTTPRequests:       httpRequests,
		HTTPDuration:       httpDuration,
		IndexingRuns:       indexingRuns,
		IndexingDuration:   indexingDuration,
		SearchRequests:     searchRequests,
		SearchDuration:     searchDuration,
		Uploads:            uploads,
		CacheHits:          cacheHits,
		CacheMisses:        cacheMisses,
		ArtifactGeneration: artifactGeneration,
	}
}

// ObserveHTTP records one served request.
func (c *Collector) ObserveHTTP(method, route string, status int, duration time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveIndexingRun records one finished indexing run.
func (c *Collector) ObserveIndexingRun(status string, duration time.Duration) {
	c.IndexingRuns.WithLabelValues(status).Inc()
	c.IndexingDuration.Observe(duration.Seconds())
}

// ObserveSearch records one search call.
func (c *Collector) ObserveSearch(mode, status string, duration time.Duration) {
	c.SearchRequests.WithLabelValues(mode, status).Inc()
	c.SearchDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Handler returns the HTTP handler serving this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
