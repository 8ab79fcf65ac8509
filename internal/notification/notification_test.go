package notification

import (
	"sync"
	"testing"
	"time"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/events"
)

type sent struct {
	title   string
	message string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	errs []error
}

func (f *fakeSender) Send(message string, params *stypes.Params) []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	title, _ := params.Title()
	f.sent = append(f.sent, sent{title: title, message: message})
	return f.errs
}

func TestNotifier_SendsFailures(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	n := NewNotifier(fs, "site-a", nil)

	code := 1
	require.NoError(t, n.ProcessEvent(events.LifecycleEvent{
		Type:       events.TypeFailed,
		MID:        "VT004",
		Stage:      events.StageUpload,
		Error:      "upload failed: bucket unreachable",
		OutputFile: "7-March-2025-2-05-PM-VT004.mp4",
		ExitCode:   &code,
		Timestamp:  time.Date(2025, 3, 7, 14, 6, 0, 0, time.UTC),
	}))

	require.Len(t, fs.sent, 1)
	assert.Equal(t, "[site-a] Recording upload failed for VT004", fs.sent[0].title)
	assert.Contains(t, fs.sent[0].message, "bucket unreachable")
	assert.Contains(t, fs.sent[0].message, "7-March-2025-2-05-PM-VT004.mp4 is retained locally")
	assert.Contains(t, fs.sent[0].message, "exit code 1")
}

func TestNotifier_IgnoresOtherEvents(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	n := NewNotifier(fs, "", nil)
	for _, typ := range []events.Type{events.TypeDetected, events.TypeStarted, events.TypeStopped, events.TypeArchived} {
		require.NoError(t, n.ProcessEvent(events.LifecycleEvent{Type: typ, MID: "VT001"}))
	}
	assert.Empty(t, fs.sent)
}

func TestNotifier_SendErrorIsReturned(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{errs: []error{nil, errors.NewStd("telegram: 401 unauthorized")}}
	n := NewNotifier(fs, "", nil)

	err := n.ProcessEvent(events.LifecycleEvent{Type: events.TypeFailed, MID: "VT001", Stage: events.StageSpawn})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 unauthorized")
	assert.True(t, errors.IsCategory(err, errors.CategoryIntegration))
	assert.Equal(t, "Recording start failed for VT001", fs.sent[0].title)
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	_, err := NewSender(nil, 0)
	require.Error(t, err)

	_, err = NewSender([]string{"nosuchservice://token@host"}, time.Second)
	require.Error(t, err)

	s, err := NewSender([]string{"logger://"}, time.Second)
	require.NoError(t, err)
	assert.NotNil(t, s)
}
