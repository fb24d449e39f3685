package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudmedia",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cloudmedia",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 120},
		},
		[]string{"method", "endpoint"},
	)

	// Compress operations by resource kind, mode and outcome
	CompressionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudmedia",
			Name:      "compressions_total",
			Help:      "Total compress operations",
		},
		[]string{"kind", "mode", "outcome"},
	)

	// Transform calls spent per compress operation
	CompressionAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cloudmedia",
			Name:      "compression_attempts",
			Help:      "Transform calls issued by one compress operation",
			Buckets:   []float64{1, 2, 3, 5, 8, 12},
		},
		[]string{"kind"},
	)

	CompressionRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cloudmedia",
			Name:      "compression_ratio",
			Help:      "Achieved bytes divided by original bytes",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1},
		},
		[]string{"kind"},
	)

	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudmedia",
			Name:      "conversions_total",
			Help:      "Total convert operations",
		},
		[]string{"kind", "status"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudmedia",
			Name:      "uploads_total",
			Help:      "Total file uploads",
		},
		[]string{"resource_type", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cloudmedia",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"resource_type"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordCompression records one finished compress operation. outcome is
// "ok", "warning" or "error".
func RecordCompression(kind, mode, outcome string, attempts int, originalBytes, achievedBytes int64) {
	CompressionsTotal.WithLabelValues(kind, mode, outcome).Inc()
	if outcome == "error" {
		return
	}
	if attempts > 0 {
		CompressionAttempts.WithLabelValues(kind).Observe(float64(attempts))
	}
	if originalBytes > 0 {
		CompressionRatio.WithLabelValues(kind).Observe(float64(achievedBytes) / float64(originalBytes))
	}
}

// RecordConversion records a convert operation
func RecordConversion(kind, status string) {
	ConversionsTotal.WithLabelValues(kind, status).Inc()
}

// RecordUpload records a file upload
func RecordUpload(resourceType, status string, bytes int64) {
	UploadsTotal.WithLabelValues(resourceType, status).Inc()
	if status == "success" {
		UploadBytesTotal.WithLabelValues(resourceType).Add(float64(bytes))
	}
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
