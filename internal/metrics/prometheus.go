// Package metrics exposes Prometheus counters for imports, media and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	importRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_import_rows_total",
			Help: "Import rows processed, by outcome.",
		},
		[]string{"outcome"},
	)
	assetResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_asset_resolutions_total",
			Help: "Attachment resolutions, by result (reused, downloaded, failed).",
		},
		[]string{"result"},
	)
	siblingGroupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_sibling_groups_saved_total",
			Help: "Translation groups written by the sibling linker.",
		},
	)
	taxonomyMergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_taxonomy_merged_roots_total",
			Help: "Duplicate taxonomy roots merged into their canonical root.",
		},
		[]string{"taxonomy"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint", "status"},
	)
)

func init() {
	prometheus.MustRegister(importRowsTotal)
	prometheus.MustRegister(assetResolutionsTotal)
	prometheus.MustRegister(siblingGroupsTotal)
	prometheus.MustRegister(taxonomyMergesTotal)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
}

// RecordRow counts one processed import row.
func RecordRow(outcome string) {
	importRowsTotal.WithLabelValues(outcome).Inc()
}

// RecordAsset counts one attachment resolution.
func RecordAsset(result string) {
	assetResolutionsTotal.WithLabelValues(result).Inc()
}

// RecordSiblingGroup counts one saved translation group.
func RecordSiblingGroup() {
	siblingGroupsTotal.Inc()
}

// RecordMergedRoots counts duplicate roots removed from a taxonomy.
func RecordMergedRoots(taxonomy string, n int) {
	if n > 0 {
		taxonomyMergesTotal.WithLabelValues(taxonomy).Add(float64(n))
	}
}

// RecordRequest records metrics for one HTTP request.
func RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := classifyStatus(statusCode)
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}

// MetricsHandler returns the HTTP handler exporting the Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
