package orchestrator

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/rtp-recorder/internal/detector"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/events"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/recorder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedDetector struct {
	results map[string]detector.Result
}

func (d *scriptedDetector) DetectAll(ctx context.Context, defs []feed.Definition, onResult detector.DetectFunc) detector.Summary {
	summary := make(detector.Summary)
	for _, def := range defs {
		res, ok := d.results[def.MID]
		if !ok {
			res = detector.Result{MID: def.MID, Port: def.Port, Outcome: detector.OutcomeTimedOut}
		}
		summary[res.Outcome]++
		onResult(ctx, def, res)
	}
	return summary
}

type fakeStore struct {
	mu      sync.Mutex
	upserts []feed.Definition
	err     error
	calls   *[]string
}

func (s *fakeStore) UpsertStream(_ context.Context, def feed.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, def)
	if s.calls != nil {
		*s.calls = append(*s.calls, "upsert:"+def.MID)
	}
	return s.err
}

type fakeStarter struct {
	mu       sync.Mutex
	requests []recorder.StartRequest
	err      error
	calls    *[]string
}

func (s *fakeStarter) Start(_ context.Context, req recorder.StartRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.calls != nil {
		*s.calls = append(*s.calls, "start:"+req.MID)
	}
	if s.err != nil {
		return "", s.err
	}
	return "out-" + req.MID + ".mp4", nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []events.LifecycleEvent
}

func (f *fakeEvents) TryPublish(e events.LifecycleEvent) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return true
}

func newRegistry(t *testing.T, count, startPort int) *feed.Registry {
	t.Helper()
	reg, err := feed.NewRegistry(feed.Generate(feed.GenerateOptions{Count: count, StartPort: startPort}))
	require.NoError(t, err)
	return reg
}

func TestRun_DetectedFeedIsPersistedThenRecorded(t *testing.T) {
	t.Parallel()

	var calls []string
	reg := newRegistry(t, 3, 5001)
	store := &fakeStore{calls: &calls}
	starter := &fakeStarter{calls: &calls}
	ev := &fakeEvents{}
	det := &scriptedDetector{results: map[string]detector.Result{
		"VT001": {MID: "VT001", Port: 5001, Outcome: detector.OutcomeDetected, Source: feed.Source{IP: "10.0.0.5", Port: 40000}},
		"VT003": {MID: "VT003", Port: 5003, Outcome: detector.OutcomeBindConflict},
	}}

	o := New(Config{AutoRecord: true}, Deps{
		Registry: reg, Detector: det, Store: store, Recorder: starter, Events: ev, Logger: logger.NewDiscard(),
	})
	summary := o.Run(t.Context())

	assert.Equal(t, 1, summary[detector.OutcomeDetected])
	assert.Equal(t, 1, summary[detector.OutcomeTimedOut])
	assert.Equal(t, 1, summary[detector.OutcomeBindConflict])
	assert.Equal(t, []string{"upsert:VT001", "start:VT001"}, calls)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, "10.0.0.5", store.upserts[0].CameraIP)
	require.NotNil(t, store.upserts[0].SenderPort)
	assert.Equal(t, 40000, *store.upserts[0].SenderPort)

	require.Len(t, starter.requests, 1)
	assert.Equal(t, recorder.StartRequest{
		MID: "VT001", CameraIP: "10.0.0.5", Port: 5001, Label: "5001", PayloadType: 100, Codec: "h264",
	}, starter.requests[0])

	state, err := reg.State("VT001")
	require.NoError(t, err)
	assert.Equal(t, feed.StateDetected, state)
	state, err = reg.State("VT002")
	require.NoError(t, err)
	assert.Equal(t, feed.StateDetectionTimedOut, state)
	state, err = reg.State("VT003")
	require.NoError(t, err)
	assert.Equal(t, feed.StateUnknown, state)

	require.Len(t, ev.events, 1)
	assert.Equal(t, events.TypeDetected, ev.events[0].Type)
	assert.Equal(t, 40000, ev.events[0].SenderPort)
}

func TestHandleResult_StoreFailureStillRecords(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 1, 5001)
	store := &fakeStore{err: errors.NewStd("database is locked")}
	starter := &fakeStarter{}
	o := New(Config{AutoRecord: true}, Deps{Registry: reg, Detector: &scriptedDetector{}, Store: store, Recorder: starter})

	def, _ := reg.Get("VT001")
	o.HandleResult(t.Context(), def, detector.Result{
		MID: "VT001", Outcome: detector.OutcomeDetected, Source: feed.Source{IP: "10.0.0.9", Port: 1234},
	})

	assert.Len(t, store.upserts, 1)
	assert.Len(t, starter.requests, 1)
}

func TestHandleResult_AutoRecordDisabled(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 1, 5001)
	store := &fakeStore{}
	starter := &fakeStarter{}
	o := New(Config{AutoRecord: false}, Deps{Registry: reg, Detector: &scriptedDetector{}, Store: store, Recorder: starter})

	def, _ := reg.Get("VT001")
	o.HandleResult(t.Context(), def, detector.Result{
		MID: "VT001", Outcome: detector.OutcomeDetected, Source: feed.Source{IP: "10.0.0.9", Port: 1234},
	})

	assert.Len(t, store.upserts, 1)
	assert.Empty(t, starter.requests)
}

func TestHandleResult_StartFailureIsContained(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 2, 5001)
	starter := &fakeStarter{err: recorder.ErrSpawnFailed}
	o := New(Config{AutoRecord: true}, Deps{Registry: reg, Detector: &scriptedDetector{}, Store: &fakeStore{}, Recorder: starter})

	for _, mid := range []string{"VT001", "VT002"} {
		def, _ := reg.Get(mid)
		o.HandleResult(t.Context(), def, detector.Result{
			MID: mid, Outcome: detector.OutcomeDetected, Source: feed.Source{IP: "10.0.0.9", Port: 1234},
		})
	}
	assert.Len(t, starter.requests, 2)
}

func TestHandleResult_CanceledContextSkipsStart(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 1, 5001)
	starter := &fakeStarter{}
	o := New(Config{AutoRecord: true}, Deps{Registry: reg, Detector: &scriptedDetector{}, Store: &fakeStore{}, Recorder: starter})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	def, _ := reg.Get("VT001")
	o.HandleResult(ctx, def, detector.Result{
		MID: "VT001", Outcome: detector.OutcomeDetected, Source: feed.Source{IP: "10.0.0.9", Port: 1234},
	})
	assert.Empty(t, starter.requests)
}

func TestHandleResult_DetectionWhileRecordingKeepsStateAndPersistsSource(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 1, 5001)
	store := &fakeStore{}
	starter := &fakeStarter{}
	ev := &fakeEvents{}
	o := New(Config{AutoRecord: true}, Deps{
		Registry: reg, Detector: &scriptedDetector{}, Store: store, Recorder: starter, Events: ev, Logger: logger.NewDiscard(),
	})

	stale := 1111
	require.Equal(t, 1, o.Restore([]feed.Definition{{MID: "VT001", CameraIP: "10.0.0.9", SenderPort: &stale}}))
	require.NoError(t, reg.Transition("VT001", feed.StateRecording))

	def, _ := reg.Get("VT001")
	o.HandleResult(t.Context(), def, detector.Result{
		MID: "VT001", Port: 5001, Outcome: detector.OutcomeDetected, Source: feed.Source{IP: "10.0.0.5", Port: 40000},
	})

	got, ok := reg.Get("VT001")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", got.CameraIP)
	require.NotNil(t, got.SenderPort)
	assert.Equal(t, 40000, *got.SenderPort)

	state, err := reg.State("VT001")
	require.NoError(t, err)
	assert.Equal(t, feed.StateRecording, state)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, "10.0.0.5", store.upserts[0].CameraIP)
	require.Len(t, ev.events, 1)
	assert.Equal(t, events.TypeDetected, ev.events[0].Type)
	assert.Empty(t, starter.requests, "a recording feed is not started again")
}

func TestRestore(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t, 3, 5001)
	o := New(Config{}, Deps{Registry: reg, Detector: &scriptedDetector{}, Store: &fakeStore{}})

	port := 40000
	n := o.Restore([]feed.Definition{
		{MID: "VT001", CameraIP: "10.0.0.5", SenderPort: &port},
		{MID: "VT002", CameraIP: feed.UnknownSource},
		{MID: "VT999", CameraIP: "10.0.0.7"},
	})
	assert.Equal(t, 1, n)

	def, ok := reg.Get("VT001")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5", def.CameraIP)
	state, err := reg.State("VT001")
	require.NoError(t, err)
	assert.Equal(t, feed.StateUnknown, state)
}

// A datagram from loopback on the feed's port yields the sender as the
// feed source and triggers a recording.
func TestRun_LoopbackSenderStartsRecording(t *testing.T) {
	t.Parallel()

	probe, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	port := probe.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, probe.Close())

	sender, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer sender.Close()
	senderPort := sender.LocalAddr().(*net.UDPAddr).Port

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		dst := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			_, _ = sender.WriteToUDP([]byte{0x80, 0x64, 0x00, 0x01}, dst)
			select {
			case <-done:
				return
			case <-ticker.C:
			}
		}
	})
	defer wg.Wait()
	defer close(done)

	reg := newRegistry(t, 1, port)
	store := &fakeStore{}
	starter := &fakeStarter{}
	det := detector.New(detector.Config{BindAddress: "127.0.0.1", Timeout: 3 * time.Second}, logger.NewDiscard(), nil)
	o := New(Config{AutoRecord: true}, Deps{Registry: reg, Detector: det, Store: store, Recorder: starter})

	summary := o.Run(t.Context())
	require.Equal(t, 1, summary[detector.OutcomeDetected])

	require.Len(t, starter.requests, 1)
	assert.Equal(t, "127.0.0.1", starter.requests[0].CameraIP)
	assert.Equal(t, port, starter.requests[0].Port)
	require.Len(t, store.upserts, 1)
	require.NotNil(t, store.upserts[0].SenderPort)
	assert.Equal(t, senderPort, *store.upserts[0].SenderPort)
}
