package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics tracks lifecycle event publishing.
type MQTTMetrics struct {
	connected     prometheus.Gauge
	publishTotal  *prometheus.CounterVec
	payloadBytes  prometheus.Histogram
	collectorList []prometheus.Collector
}

// NewMQTTMetrics creates and registers the MQTT metrics.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_connected",
			Help: "1 while the lifecycle event broker connection is up",
		}),
		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mqtt_events_published_total",
				Help: "Lifecycle events published, by event and result",
			},
			[]string{"event", "result"},
		),
		payloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mqtt_payload_bytes",
			Help:    "Size of published event payloads",
			Buckets: prometheus.ExponentialBuckets(64, BucketFactor2, 8),
		}),
	}
	m.collectorList = []prometheus.Collector{m.connected, m.publishTotal, m.payloadBytes}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateConnectionStatus sets the connection gauge.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if m == nil {
		return
	}
	v := 0.0
	if connected {
		v = 1
	}
	m.connected.Set(v)
}

// RecordPublish counts a publish to topic. The event label is the last
// topic segment, e.g. "started" for cams/VT001/started.
func (m *MQTTMetrics) RecordPublish(topic string, size int, err error) {
	if m == nil {
		return
	}
	event := topic
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		event = topic[i+1:]
	}
	if err != nil {
		m.publishTotal.WithLabelValues(event, ResultError).Inc()
		return
	}
	m.publishTotal.WithLabelValues(event, ResultSuccess).Inc()
	m.payloadBytes.Observe(float64(size))
}

func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectorList {
		c.Describe(ch)
	}
}

func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectorList {
		c.Collect(ch)
	}
}
