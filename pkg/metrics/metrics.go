// Package metrics exposes Prometheus instrumentation for the file server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposerver_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// UploadsTotal counts uploads by status (success, failure)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposerver_uploads_total",
			Help: "Total number of file uploads",
		},
		[]string{"status"},
	)

	// AuthFailuresTotal counts rejected credentials by outcome (malformed, unauthenticated)
	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposerver_auth_failures_total",
			Help: "Total number of rejected authentication attempts",
		},
		[]string{"outcome"},
	)

	// MetadataExtractionsTotal counts metadata lookups by extractor and status
	MetadataExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exposerver_metadata_extractions_total",
			Help: "Total number of metadata extractions",
		},
		[]string{"extractor", "status"},
	)
)

// Histogram metrics
var (
	// HTTPRequestDuration tracks request latency by method and route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exposerver_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "route"},
	)

	// UploadSizeBytes tracks the size of stored uploads
	UploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exposerver_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)
)

// Middleware records request count and latency. Requests that matched no
// explicit route are labelled "/*" so served paths never become labels.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "/*"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	}
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
