package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks API requests by route pattern.
type HTTPMetrics struct {
	requests    *prometheus.CounterVec   // method, route, status
	latency     *prometheus.HistogramVec // method, route
	failures    *prometheus.CounterVec   // method, route, reason
	uploadBytes prometheus.Histogram
}

// NewHTTPMetrics creates the API metrics and registers them with registry.
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdlens_http_requests_total",
			Help: "API requests by route pattern and status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "birdlens_http_request_duration_seconds",
			Help:    "API request handling time",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		}, []string{"method", "route"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "birdlens_http_request_errors_total",
			Help: "API requests that ended in an error, by reason",
		}, []string{"method", "route", "reason"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "birdlens_http_upload_size_bytes",
			Help:    "Size of uploaded photos",
			Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor2, BucketCount15),
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.latency, m.failures, m.uploadBytes} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveRequest records one handled request. route is the pattern, never the raw path.
func (m *HTTPMetrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *HTTPMetrics) CountFailure(method, route, reason string) {
	m.failures.WithLabelValues(method, route, reason).Inc()
}

func (m *HTTPMetrics) ObserveUploadSize(sizeBytes int) {
	m.uploadBytes.Observe(float64(sizeBytes))
}
