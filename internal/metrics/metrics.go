package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPRequestsTotal counts handled HTTP requests by method, path and status.
var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "churchattend_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	},
	[]string{"method", "path", "status"},
)

// HTTPRequestDuration observes request latency by method and path.
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "churchattend_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "path"},
)

// SheetsCallsTotal counts calls made against the spreadsheet API by operation.
var SheetsCallsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "churchattend_sheets_calls_total",
		Help: "Total number of spreadsheet API calls.",
	},
	[]string{"operation"},
)

// SheetsErrorsTotal counts spreadsheet API calls that returned an error.
var SheetsErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "churchattend_sheets_errors_total",
		Help: "Total number of failed spreadsheet API calls.",
	},
	[]string{"operation"},
)

// CacheHitsTotal counts record cache hits by table.
var CacheHitsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "churchattend_cache_hits_total",
		Help: "Total number of record cache hits.",
	},
	[]string{"table"},
)

// CacheMissesTotal counts record cache misses by table.
var CacheMissesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "churchattend_cache_misses_total",
		Help: "Total number of record cache misses.",
	},
	[]string{"table"},
)

// RateLimitWaitSeconds observes time spent waiting for the spreadsheet rate limiter.
var RateLimitWaitSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "churchattend_rate_limit_wait_seconds",
		Help:    "Seconds spent sleeping in the spreadsheet rate limiter.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
	[]string{"operation"},
)
