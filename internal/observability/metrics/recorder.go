package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RecorderMetrics contains Prometheus metrics for capture sessions.
type RecorderMetrics struct {
	registry *prometheus.Registry

	activeRecordings  prometheus.Gauge
	startsTotal       *prometheus.CounterVec
	stopsTotal        *prometheus.CounterVec
	recordingDuration prometheus.Histogram
	exitCodesTotal    *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewRecorderMetrics creates and registers recorder metrics.
func NewRecorderMetrics(registry *prometheus.Registry) (*RecorderMetrics, error) {
	m := &RecorderMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RecorderMetrics) initMetrics() {
	m.activeRecordings = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_active_recordings",
		Help: "Number of capture subprocesses currently running",
	})

	m.startsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_starts_total",
			Help: "Recording start attempts by result",
		},
		[]string{"result"}, // success, already-active, spawn-failed
	)

	m.stopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_stops_total",
			Help: "Recording stops by trigger and result",
		},
		[]string{"trigger", "result"}, // trigger: manual, auto, shutdown
	)

	m.recordingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recorder_recording_duration_seconds",
		Help:    "Wall clock duration of finished recordings",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount15), // 100ms to ~27m
	})

	m.exitCodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recorder_exit_codes_total",
			Help: "Capture subprocess exits by exit code",
		},
		[]string{"code", "clean"},
	)

	m.collectors = []prometheus.Collector{
		m.activeRecordings, m.startsTotal, m.stopsTotal, m.recordingDuration, m.exitCodesTotal,
	}
}

// Describe implements the Collector interface
func (m *RecorderMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *RecorderMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordStart counts a start attempt and tracks the active gauge on success.
func (m *RecorderMetrics) RecordStart(result string) {
	if m == nil {
		return
	}
	m.startsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.activeRecordings.Inc()
	}
}

// RecordStop counts a completed stop sequence.
func (m *RecorderMetrics) RecordStop(trigger, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stopsTotal.WithLabelValues(trigger, result).Inc()
	m.activeRecordings.Dec()
	m.recordingDuration.Observe(elapsed.Seconds())
}

// RecordExit counts a subprocess exit code.
func (m *RecorderMetrics) RecordExit(code int, clean bool) {
	if m == nil {
		return
	}
	cleanLabel := "false"
	if clean {
		cleanLabel = "true"
	}
	m.exitCodesTotal.WithLabelValues(itoa(code), cleanLabel).Inc()
}
