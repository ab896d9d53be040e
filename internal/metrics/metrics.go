// Package metrics exposes Prometheus collectors for the scraping pipelines.
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
	pagesFetchedTotal          *prometheus.CounterVec
	linksDiscoveredTotal       prometheus.Counter
	productsTotal              *prometheus.CounterVec
	pipelineRunDuration        *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeJobs                 prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_pages_fetched_total",
				Help: "Pages fetched, labeled by page kind and result.",
			},
			[]string{"kind", "result"},
		)

		linksDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_links_discovered_total",
				Help: "Unique product links discovered by URL runs.",
			},
		)

		productsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_products_total",
				Help: "Products processed by product runs, labeled by status.",
			},
			[]string{"status"},
		)

		pipelineRunDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_run_duration_seconds",
				Help:    "Pipeline run latency, labeled by pipeline and status.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900},
			},
			[]string{"pipeline", "status"},
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

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pipeline_active_jobs",
				Help: "Pipeline jobs currently running.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePage counts one fetched page. kind is "search" or "product".
func ObservePage(kind, result string) {
	Init()
	pagesFetchedTotal.WithLabelValues(kind, result).Inc()
}

func ObserveLinks(n int) {
	Init()
	linksDiscoveredTotal.Add(float64(n))
}

// ObserveProducts adds scraped and failed counts from a finished product run.
func ObserveProducts(scraped, failed int) {
	Init()
	productsTotal.WithLabelValues("scraped").Add(float64(scraped))
	productsTotal.WithLabelValues("failed").Add(float64(failed))
}

func ObserveRun(pipeline, status string, d time.Duration) {
	Init()
	pipelineRunDuration.WithLabelValues(pipeline, status).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func IncActiveJobs() {
	Init()
	activeJobs.Inc()
}

func DecActiveJobs() {
	Init()
	activeJobs.Dec()
}
