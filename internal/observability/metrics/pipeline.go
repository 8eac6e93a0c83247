package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains Prometheus metrics for identification runs.
type PipelineMetrics struct {
	runsTotal        *prometheus.CounterVec
	stageTotal       *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	stageErrors      *prometheus.CounterVec
	uploadsDegraded  prometheus.Counter
	payloadSizeBytes prometheus.Histogram
	registrySize     prometheus.Histogram
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdlens_pipeline_runs_total",
			Help: "Total number of identification runs by result",
		},
		[]string{"result"}, // verified, rejected, failed, cancelled
	)

	m.stageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdlens_pipeline_stage_total",
			Help: "Total number of pipeline stage executions by status",
		},
		[]string{"stage", "status"},
	)

	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birdlens_pipeline_stage_duration_seconds",
			Help:    "Time taken by each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount12), // 10ms to ~40s
		},
		[]string{"stage"},
	)

	m.stageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birdlens_pipeline_stage_errors_total",
			Help: "Total number of pipeline stage errors by error kind",
		},
		[]string{"stage", "kind"},
	)

	m.uploadsDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "birdlens_pipeline_uploads_degraded_total",
		Help: "Verified runs saved without an image because the upload failed",
	})

	m.payloadSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "birdlens_pipeline_payload_size_bytes",
		Help:    "Size of the encoded JPEG payload sent to the vision model",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor2, BucketCount10), // 1KB to ~512KB
	})

	m.registrySize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "birdlens_pipeline_registry_species",
		Help:    "Number of species in the regional registry used for verification",
		Buckets: prometheus.ExponentialBuckets(1, BucketFactor2, BucketCount12), // 1 to 2048
	})
}

func (m *PipelineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.runsTotal,
		m.stageTotal,
		m.stageDuration,
		m.stageErrors,
		m.uploadsDegraded,
		m.payloadSizeBytes,
		m.registrySize,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordOperation counts a stage execution.
func (m *PipelineMetrics) RecordOperation(operation, status string) {
	m.stageTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration observes a stage duration in seconds.
func (m *PipelineMetrics) RecordDuration(operation string, seconds float64) {
	m.stageDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError counts a stage error by kind.
func (m *PipelineMetrics) RecordError(operation, errorType string) {
	m.stageErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordRun counts a finished run.
func (m *PipelineMetrics) RecordRun(result string) {
	m.runsTotal.WithLabelValues(result).Inc()
}

// RecordUploadDegraded counts a save that went ahead without an image URL.
func (m *PipelineMetrics) RecordUploadDegraded() {
	m.uploadsDegraded.Inc()
}

// ObservePayloadSize records the encoded payload size.
func (m *PipelineMetrics) ObservePayloadSize(sizeBytes int) {
	m.payloadSizeBytes.Observe(float64(sizeBytes))
}

// ObserveRegistrySize records how many species a region returned.
func (m *PipelineMetrics) ObserveRegistrySize(n int) {
	m.registrySize.Observe(float64(n))
}
