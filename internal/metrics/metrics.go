// Package metrics exposes Prometheus collectors for the ingestion job and the
// recommendation service.
package metrics

import (
	"fmt"
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
	ingestItemsTotal           *prometheus.CounterVec
	ingestRunsTotal            *prometheus.CounterVec
	ingestLastRunItems         *prometheus.GaugeVec
	remoteRequestsTotal        *prometheus.CounterVec
	remoteRequestDuration      *prometheus.HistogramVec
	assetDownloadsTotal        *prometheus.CounterVec
	assetBytesTotal            *prometheus.CounterVec
	throttlePauseSeconds       prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	recommendGenerationsTotal  *prometheus.CounterVec
	newsRecordsExtractedTotal  prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_ingest_items_total",
				Help: "Total number of catalog items processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		ingestRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_ingest_runs_total",
				Help: "Total number of ingestion runs, labeled by terminal state.",
			},
			[]string{"state"},
		)

		ingestLastRunItems = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_ingest_last_run_items",
				Help: "Item counts of the most recent run, labeled by kind.",
			},
			[]string{"kind"},
		)

		remoteRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_remote_requests_total",
				Help: "Total number of catalog API calls, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		remoteRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_remote_request_duration_seconds",
				Help:    "Histogram of catalog API latencies, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		)

		assetDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_asset_downloads_total",
				Help: "Total number of asset downloads, labeled by host and status.",
			},
			[]string{"site", "status"},
		)

		assetBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_asset_bytes_total",
				Help: "Total number of asset bytes written, labeled by host.",
			},
			[]string{"site"},
		)

		throttlePauseSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_throttle_pause_seconds",
				Help:    "Histogram of inter-item throttle pauses.",
				Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1, 2, 5},
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

		recommendGenerationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recommend_generations_total",
				Help: "Total number of text generation calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		newsRecordsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "news_records_extracted_total",
				Help: "Total number of news records extracted from scraped pages.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
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
	return promhttp.Handler()
}

// WriteTextfile dumps the default registry to path in the node_exporter
// textfile format. Batch jobs have no scrape endpoint, so this is how an
// ingestion run publishes its numbers.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ObserveItem increments the per-item outcome counter.
func ObserveItem(status string) {
	Init()
	ingestItemsTotal.WithLabelValues(status).Inc()
}

// ObserveRun records the terminal state and item counts of a run.
func ObserveRun(state string, listed, attempted, completed, failed int) {
	Init()
	ingestRunsTotal.WithLabelValues(state).Inc()
	ingestLastRunItems.WithLabelValues("listed").Set(float64(listed))
	ingestLastRunItems.WithLabelValues("attempted").Set(float64(attempted))
	ingestLastRunItems.WithLabelValues("completed").Set(float64(completed))
	ingestLastRunItems.WithLabelValues("failed").Set(float64(failed))
}

// ObserveRemoteRequest records one catalog API call.
func ObserveRemoteRequest(endpoint, outcome string, duration time.Duration) {
	Init()
	remoteRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	remoteRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveDownload records an asset download and the bytes it wrote.
func ObserveDownload(site, status string, bytesWritten int64) {
	Init()
	sanitizedSite := SanitizeSite(site)
	assetDownloadsTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesWritten > 0 {
		assetBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesWritten))
	}
}

// ObserveThrottle records how long the loop paused between items.
func ObserveThrottle(duration time.Duration) {
	Init()
	throttlePauseSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveGeneration counts a text generation call.
func ObserveGeneration(outcome string) {
	Init()
	recommendGenerationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveNewsRecords counts extracted news records.
func ObserveNewsRecords(n int) {
	Init()
	newsRecordsExtractedTotal.Add(float64(n))
}
