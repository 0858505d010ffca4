// Package metrics defines the Prometheus collectors used by the service and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Search result types recorded on SearchQueriesTotal.
const (
	ResultMatch      = "match"
	ResultZero       = "zero_result"
	ResultEmptyQuery = "empty_query"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   prometheus.Histogram
	InvalidPatternsTotal prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CacheCircuitOpen     prometheus.Gauge
	DatasetArticles      prometheus.Gauge
	DatasetTerms         prometheus.Gauge
}

// New creates all collectors and registers them with reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not panic.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total keyword searches by result type (match, zero_result, empty_query).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Keyword search latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of matching articles per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
			},
		),
		InvalidPatternsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_invalid_patterns_total",
				Help: "OR-groups whose pattern failed to compile and matched nothing.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of search cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of search cache misses.",
			},
		),
		CacheCircuitOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cache_circuit_open",
				Help: "1 while the search cache circuit breaker is open, else 0.",
			},
		),
		DatasetArticles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dataset_articles",
				Help: "Number of articles in the loaded dataset.",
			},
		),
		DatasetTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dataset_vocabulary_terms",
				Help: "Number of vocabulary terms in the loaded search index.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.InvalidPatternsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheCircuitOpen,
		m.DatasetArticles,
		m.DatasetTerms,
	)

	return m
}

// ObserveSearch records one evaluated query.
func (m *Metrics) ObserveSearch(empty bool, matches int, cacheHit bool, seconds float64) {
	switch {
	case empty:
		m.SearchQueriesTotal.WithLabelValues(ResultEmptyQuery).Inc()
	case matches == 0:
		m.SearchQueriesTotal.WithLabelValues(ResultZero).Inc()
	default:
		m.SearchQueriesTotal.WithLabelValues(ResultMatch).Inc()
	}
	status := "miss"
	if cacheHit {
		status = "hit"
	}
	m.SearchLatency.WithLabelValues(status).Observe(seconds)
	m.SearchResultsCount.Observe(float64(matches))
}

// Handler returns the scrape handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
