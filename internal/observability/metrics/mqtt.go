package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics tracks the broker connection and entry publishing.
type MQTTMetrics struct {
	connected      prometheus.Gauge
	lastConnect    prometheus.Gauge
	delivered      prometheus.Counter
	errors         prometheus.Counter
	reconnects     prometheus.Counter
	messageSize    prometheus.Histogram
	publishLatency prometheus.Histogram
}

// NewMQTTMetrics creates the MQTT metrics and registers them with registry.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "birdlens_mqtt_connection_status",
			Help: "1 while connected to the MQTT broker, 0 otherwise",
		}),
		lastConnect: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "birdlens_mqtt_last_connect_time_seconds",
			Help: "Unix time of the last successful broker connection",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdlens_mqtt_messages_delivered_total",
			Help: "Collection entries published to the broker",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdlens_mqtt_errors_total",
			Help: "Connection and publish failures",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "birdlens_mqtt_reconnect_attempts_total",
			Help: "Broker reconnection attempts",
		}),
		messageSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "birdlens_mqtt_message_size_bytes",
			Help:    "Size of published entry payloads",
			Buckets: prometheus.ExponentialBuckets(64, 2, 10),
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "birdlens_mqtt_publish_latency_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),
	}

	for _, c := range []prometheus.Collector{
		m.connected, m.lastConnect, m.delivered, m.errors, m.reconnects, m.messageSize, m.publishLatency,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
		}
	}
	return m, nil
}

// UpdateConnectionStatus records a connection state change.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if !connected {
		m.connected.Set(0)
		return
	}
	m.connected.Set(1)
	m.lastConnect.SetToCurrentTime()
}

// RecordPublish counts one acknowledged publish.
func (m *MQTTMetrics) RecordPublish(sizeBytes int, latencySeconds float64) {
	m.delivered.Inc()
	m.messageSize.Observe(float64(sizeBytes))
	m.publishLatency.Observe(latencySeconds)
}

func (m *MQTTMetrics) IncrementErrors() { m.errors.Inc() }

func (m *MQTTMetrics) IncrementReconnectAttempts() { m.reconnects.Inc() }
