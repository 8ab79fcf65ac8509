package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectorMetrics contains Prometheus metrics for RTP source detection.
type DetectorMetrics struct {
	registry *prometheus.Registry

	OutcomesTotal    *prometheus.CounterVec
	detectionLatency prometheus.Histogram
	ListenersActive  prometheus.Gauge

	collectors []prometheus.Collector
}

// NewDetectorMetrics creates and registers detection metrics.
func NewDetectorMetrics(registry *prometheus.Registry) (*DetectorMetrics, error) {
	m := &DetectorMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DetectorMetrics) initMetrics() {
	m.OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detector_outcomes_total",
			Help: "Detection task results by outcome",
		},
		[]string{"outcome"}, // detected, timed-out, bind-conflict, bind-error, canceled
	)

	m.detectionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "detector_first_packet_seconds",
		Help:    "Time from listener bind to the first received datagram",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
	})

	m.ListenersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detector_listeners_active",
		Help: "Number of currently bound detection listeners",
	})

	m.collectors = []prometheus.Collector{m.OutcomesTotal, m.detectionLatency, m.ListenersActive}
}

// Describe implements the Collector interface
func (m *DetectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DetectorMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOutcome counts a finished detection task.
func (m *DetectorMetrics) RecordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.OutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveLatency records the wait until the first datagram.
func (m *DetectorMetrics) ObserveLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.detectionLatency.Observe(d.Seconds())
}

// ListenerOpened increments the bound listener gauge.
func (m *DetectorMetrics) ListenerOpened() {
	if m == nil {
		return
	}
	m.ListenersActive.Inc()
}

// ListenerClosed decrements the bound listener gauge.
func (m *DetectorMetrics) ListenerClosed() {
	if m == nil {
		return
	}
	m.ListenersActive.Dec()
}
