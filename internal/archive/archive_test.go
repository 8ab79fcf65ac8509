package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
	calls   int
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Put(_ context.Context, key string, r io.Reader, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return err
	}
	if n != size {
		return errors.NewStd("short write")
	}
	m.objects[key] = buf.Bytes()
	return nil
}

func (m *memStore) Close() error { return nil }

func writeArtifact(t *testing.T, name, content string) Artifact {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return Artifact{MID: "VT001", Path: p, CreatedAt: time.Now(), SessionID: "s-1"}
}

func TestObjectKey(t *testing.T) {
	t.Parallel()

	a := Artifact{Path: "/var/rec/7-March-2025-2-05-PM-VT001-1.mp4"}
	tests := []struct {
		prefix string
		want   string
	}{
		{"recordings", "recordings/7-March-2025-2-05-PM-VT001-1.mp4"},
		{"/recordings/", "recordings/7-March-2025-2-05-PM-VT001-1.mp4"},
		{"site-a/cams", "site-a/cams/7-March-2025-2-05-PM-VT001-1.mp4"},
		{"", "7-March-2025-2-05-PM-VT001-1.mp4"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectKey(tt.prefix, a), "prefix %q", tt.prefix)
	}
}

func TestUpload_DeletesAfterConfirmedWrite(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m, err := metrics.NewArchiveMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	u := NewUploader(store, Config{}, logger.NewDiscard(), m)

	a := writeArtifact(t, "7-March-2025-2-05-PM-VT001.mp4", "mp4 payload")
	key, err := u.Upload(t.Context(), a)
	require.NoError(t, err)
	assert.Equal(t, "recordings/7-March-2025-2-05-PM-VT001.mp4", key)
	assert.Equal(t, []byte("mp4 payload"), store.objects[key])
	assert.NoFileExists(t, a.Path)
}

func TestUpload_FailureRetainsFile(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.err = errors.NewStd("connection reset by peer")
	u := NewUploader(store, Config{}, logger.NewDiscard(), nil)

	a := writeArtifact(t, "clip.mp4", "data")
	_, err := u.Upload(t.Context(), a)
	require.ErrorIs(t, err, ErrUploadFailed)
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, errors.IsCategory(err, errors.CategoryArchive))
	assert.FileExists(t, a.Path)
}

func TestUpload_MissingFile(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	u := NewUploader(store, Config{}, logger.NewDiscard(), nil)

	_, err := u.Upload(t.Context(), Artifact{MID: "VT001", Path: filepath.Join(t.TempDir(), "gone.mp4")})
	require.ErrorIs(t, err, ErrUploadFailed)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
	assert.Equal(t, 0, store.calls)
}

func TestUpload_BreakerOpensAndFailsFast(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.err = errors.NewStd("bucket unreachable")
	m, err := metrics.NewArchiveMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	u := NewUploader(store, Config{FailureThreshold: 2, BreakerTimeout: time.Hour}, logger.NewDiscard(), m)

	for range 2 {
		_, err := u.Upload(t.Context(), writeArtifact(t, "clip.mp4", "data"))
		require.ErrorIs(t, err, ErrUploadFailed)
	}

	a := writeArtifact(t, "clip.mp4", "data")
	_, err = u.Upload(t.Context(), a)
	require.ErrorIs(t, err, ErrArchiveUnavailable)
	assert.Equal(t, 2, store.calls)
	assert.FileExists(t, a.Path)
	assert.Equal(t, 1, testutil.CollectAndCount(m, "archive_breaker_state"))
}

func TestUpload_BreakerRecovers(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.err = errors.NewStd("bucket unreachable")
	u := NewUploader(store, Config{FailureThreshold: 1, BreakerTimeout: 50 * time.Millisecond}, logger.NewDiscard(), nil)

	_, err := u.Upload(t.Context(), writeArtifact(t, "clip.mp4", "data"))
	require.ErrorIs(t, err, ErrUploadFailed)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	time.Sleep(100 * time.Millisecond)

	a := writeArtifact(t, "clip.mp4", "data")
	_, err = u.Upload(t.Context(), a)
	require.NoError(t, err)
	assert.NoFileExists(t, a.Path)
}

func TestUpload_CanceledContext(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	u := NewUploader(store, Config{}, logger.NewDiscard(), nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	a := writeArtifact(t, "clip.mp4", "data")
	_, err = u.Upload(ctx, a)
	require.Error(t, err)
	assert.FileExists(t, a.Path)
}

func TestContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "video/mp4", contentType("recordings/a.mp4"))
	assert.Equal(t, "video/x-matroska", contentType("a.MKV"))
	assert.Equal(t, "application/octet-stream", contentType("a.bin"))
}
