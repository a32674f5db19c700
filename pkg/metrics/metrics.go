package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Define global variables for metrics.
// We use 'promauto' which automatically registers metrics without complex initialization.

var (
	// 1. HTTP Requests Total (Counter)
	// Counts how many requests arrive, labeled by method, path, and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metridex_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"}, // Labels
	)

	// 2. HTTP Request Duration (Histogram)
	// Measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "metridex_http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
			// Buckets cover in-memory lookups (sub-millisecond) up to
			// corpus reloads surfacing in request handlers.
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// 3. Query Fetch Total (Counter)
	// Counts adapter-level fetches by query slug and outcome.
	QueryFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metridex_query_fetches_total",
			Help: "Total number of query fetch calls",
		},
		[]string{"query", "status"},
	)

	// 4. Query Fetch Duration (Histogram)
	// Measures the in-memory fetch path per query, excluding HTTP overhead.
	QueryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "metridex_query_fetch_duration_seconds",
			Help: "Duration of query fetch calls in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"query"},
	)

	// 5. Index Items (Gauge)
	// Tracks the number of items in each query's active index.
	IndexItemsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metridex_index_items_total",
			Help: "Total number of items in the active index",
		},
		[]string{"query"},
	)
)
