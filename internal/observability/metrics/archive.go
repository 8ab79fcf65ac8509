package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ArchiveMetrics contains Prometheus metrics for artifact uploads.
type ArchiveMetrics struct {
	registry *prometheus.Registry

	uploadsTotal   *prometheus.CounterVec
	uploadDuration *prometheus.HistogramVec
	uploadBytes    *prometheus.CounterVec
	artifactSize   prometheus.Histogram
	breakerState   *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewArchiveMetrics creates and registers archive metrics.
func NewArchiveMetrics(registry *prometheus.Registry) (*ArchiveMetrics, error) {
	m := &ArchiveMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ArchiveMetrics) initMetrics() {
	m.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_uploads_total",
			Help: "Artifact uploads by target and result",
		},
		[]string{"target", "result"}, // result: success, error, unavailable
	)

	m.uploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "archive_upload_duration_seconds",
			Help:    "Time taken to upload an artifact",
			Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount12), // 100ms to ~3m
		},
		[]string{"target"},
	)

	m.uploadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_uploaded_bytes_total",
			Help: "Bytes successfully uploaded",
		},
		[]string{"target"},
	)

	m.artifactSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_artifact_size_bytes",
		Help:    "Size of uploaded artifacts",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor4, BucketCount12), // 1KB to ~4GB
	})

	m.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "archive_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"target"},
	)

	m.collectors = []prometheus.Collector{
		m.uploadsTotal, m.uploadDuration, m.uploadBytes, m.artifactSize, m.breakerState,
	}
}

// Describe implements the Collector interface
func (m *ArchiveMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *ArchiveMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordUpload records an upload attempt. size is counted only on success.
func (m *ArchiveMetrics) RecordUpload(target, result string, size int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(target, result).Inc()
	m.uploadDuration.WithLabelValues(target).Observe(elapsed.Seconds())
	if result == ResultSuccess {
		m.uploadBytes.WithLabelValues(target).Add(float64(size))
		m.artifactSize.Observe(float64(size))
	}
}

// SetBreakerState publishes the breaker state for target.
func (m *ArchiveMetrics) SetBreakerState(target string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(target).Set(float64(state))
}

func itoa(n int) string { return strconv.Itoa(n) }
