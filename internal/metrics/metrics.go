// Package metrics provides Prometheus metrics collection for epubshelf.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Import results.
const (
	ImportOK       = "ok"
	ImportFallback = "fallback"
	ImportFailed   = "failed"
)

var (
	// Extraction cache metrics
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "epubshelf_cache_hits_total",
			Help: "Total number of extraction requests served from an existing tree",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "epubshelf_cache_misses_total",
			Help: "Total number of extraction requests that rebuilt the tree",
		},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epubshelf_extraction_duration_seconds",
			Help:    "Full archive extraction duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	EntriesExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "epubshelf_entries_extracted_total",
			Help: "Total number of archive entries written to the extraction cache",
		},
	)

	// Library metrics
	ImportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epubshelf_imports_total",
			Help: "Total number of imported files by result",
		},
		[]string{"result"},
	)

	// HTTP metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epubshelf_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epubshelf_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheHits,
		CacheMisses,
		ExtractionDuration,
		EntriesExtracted,
		ImportsTotal,
		RequestsTotal,
		RequestDuration,
	)
}

// Handler returns an HTTP handler for the Prometheus /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordCacheHit increments the cache hit counter.
func RecordCacheHit() {
	CacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func RecordCacheMiss() {
	CacheMisses.Inc()
}

// RecordExtraction tracks a completed extraction.
func RecordExtraction(entries int, duration time.Duration) {
	EntriesExtracted.Add(float64(entries))
	ExtractionDuration.Observe(duration.Seconds())
}

// RecordImport increments the import counter for result.
func RecordImport(result string) {
	ImportsTotal.WithLabelValues(result).Inc()
}

// RecordRequest tracks request metrics with timing.
func RecordRequest(route string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}
