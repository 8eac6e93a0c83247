package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains Prometheus metrics for push notification delivery.
type NotificationMetrics struct {
	DeliveriesTotal  *prometheus.CounterVec   // by provider, type, status
	DeliveryDuration *prometheus.HistogramVec // by provider, type
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{
		DeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "birdlens_notification_deliveries_total",
				Help: "Total number of notification deliveries by provider, type and status",
			},
			[]string{"provider", "type", "status"},
		),
		DeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "birdlens_notification_delivery_duration_seconds",
				Help:    "Time taken to deliver a notification",
				Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12),
			},
			[]string{"provider", "type"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordDelivery records one delivery attempt.
func (m *NotificationMetrics) RecordDelivery(provider, notificationType, status string, duration time.Duration) {
	m.DeliveriesTotal.WithLabelValues(provider, notificationType, status).Inc()
	m.DeliveryDuration.WithLabelValues(provider, notificationType).Observe(duration.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.DeliveriesTotal.Describe(ch)
	m.DeliveryDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.DeliveriesTotal.Collect(ch)
	m.DeliveryDuration.Collect(ch)
}
