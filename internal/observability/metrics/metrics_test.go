package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewDetectorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordOutcome("detected")
	m.RecordOutcome("timed-out")
	m.RecordOutcome("timed-out")
	m.ListenerOpened()
	m.ListenerOpened()
	m.ListenerClosed()

	assert.InDelta(t, 1, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("detected")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("timed-out")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ListenersActive), 0)
}

func TestRecorderMetrics_ActiveGauge(t *testing.T) {
	t.Parallel()

	m, err := NewRecorderMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordStart(ResultSuccess)
	m.RecordStart(ResultSuccess)
	m.RecordStart("already-active")
	assert.InDelta(t, 2, testutil.ToFloat64(m.activeRecordings), 0)

	m.RecordStop("manual", ResultSuccess, 3*time.Second)
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeRecordings), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stopsTotal.WithLabelValues("manual", ResultSuccess)), 0)

	m.RecordExit(255, true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.exitCodesTotal.WithLabelValues("255", "true")), 0)
}

func TestArchiveMetrics_BytesOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	m, err := NewArchiveMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordUpload("s3", ResultSuccess, 4096, time.Second)
	m.RecordUpload("s3", ResultError, 9999, time.Second)

	assert.InDelta(t, 4096, testutil.ToFloat64(m.uploadBytes.WithLabelValues("s3")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("s3", ResultError)), 0)

	m.SetBreakerState("s3", 2)
	assert.InDelta(t, 2, testutil.ToFloat64(m.breakerState.WithLabelValues("s3")), 0)
}

func TestDatastoreMetrics_Status(t *testing.T) {
	t.Parallel()

	m, err := NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordOperation("sqlite", "upsert", nil, time.Millisecond)
	m.RecordOperation("sqlite", "upsert", errors.New("boom"), time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("sqlite", "upsert", ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("sqlite", "upsert", ResultError)), 0)
}

func TestMQTTMetrics_EventLabel(t *testing.T) {
	t.Parallel()

	m, err := NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordPublish("cams/VT001/started", 120, nil)
	m.RecordPublish("cams/VT001/started", 120, nil)
	m.RecordPublish("cams/VT002/failed", 80, errors.New("timeout"))
	m.UpdateConnectionStatus(true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.publishTotal.WithLabelValues("started", ResultSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishTotal.WithLabelValues("failed", ResultError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.connected), 0)
}

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()

	var d *DetectorMetrics
	var r *RecorderMetrics
	var a *ArchiveMetrics
	var s *DatastoreMetrics
	var q *MQTTMetrics

	assert.NotPanics(t, func() {
		d.RecordOutcome("detected")
		d.ListenerOpened()
		r.RecordStart(ResultSuccess)
		r.RecordStop("auto", ResultSuccess, time.Second)
		a.RecordUpload("s3", ResultSuccess, 1, time.Second)
		s.RecordOperation("mysql", "get", nil, time.Millisecond)
		q.RecordPublish("cams/VT001/stopped", 1, nil)
		q.UpdateConnectionStatus(true)
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewRecorderMetrics(reg)
	require.NoError(t, err)
	_, err = NewRecorderMetrics(reg)
	require.Error(t, err)
}
