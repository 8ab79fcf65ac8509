package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtp-recorder/internal/datastore"
	"github.com/tphakala/rtp-recorder/internal/feed"
)

// racingStore runs afterRead once the list has been read from the store but
// before it is returned to the cache.
type racingStore struct {
	*memStore
	afterRead func()
}

func (r *racingStore) ListStreams(ctx context.Context) ([]datastore.Stream, error) {
	streams, err := r.memStore.ListStreams(ctx)
	if r.afterRead != nil {
		hook := r.afterRead
		r.afterRead = nil
		hook()
	}
	return streams, err
}

func TestCachedStore_ServesFromCacheUntilUpsert(t *testing.T) {
	t.Parallel()
	mem := newMemStore(undetectedStream("VT001", 5001))
	cs := NewCachedStore(mem, time.Minute)

	for range 3 {
		streams, err := cs.ListStreams(t.Context())
		require.NoError(t, err)
		require.Len(t, streams, 1)
	}
	assert.Equal(t, 1, mem.lists)

	sp := 40000
	require.NoError(t, cs.UpsertStream(t.Context(), feed.Definition{
		MID: "VT001", Port: 5001, Label: "5001", PayloadType: 100, Codec: "h264", CameraIP: "10.0.0.5", SenderPort: &sp,
	}))

	streams, err := cs.ListStreams(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, mem.lists)
	assert.Equal(t, "10.0.0.5", streams[0].CameraIP)
}

func TestCachedStore_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	mem := newMemStore(undetectedStream("VT001", 5001))
	cs := NewCachedStore(mem, 20*time.Millisecond)

	_, err := cs.ListStreams(t.Context())
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = cs.ListStreams(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, mem.lists)
}

func TestCachedStore_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()
	mem := newMemStore()
	mem.listErr = assert.AnError
	cs := NewCachedStore(mem, time.Minute)

	_, err := cs.ListStreams(t.Context())
	require.Error(t, err)
	mem.listErr = nil
	_, err = cs.ListStreams(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, mem.lists)
}

func TestCachedStore_UpsertDuringLoadIsNotMaskedByStaleList(t *testing.T) {
	t.Parallel()
	store := &racingStore{memStore: newMemStore(undetectedStream("VT001", 5001))}
	cs := NewCachedStore(store, time.Minute)

	sp := 40000
	store.afterRead = func() {
		require.NoError(t, cs.UpsertStream(t.Context(), feed.Definition{
			MID: "VT001", Port: 5001, Label: "5001", PayloadType: 100, Codec: "h264", CameraIP: "10.0.0.5", SenderPort: &sp,
		}))
	}

	stale, err := cs.ListStreams(t.Context())
	require.NoError(t, err)
	assert.Equal(t, feed.UnknownSource, stale[0].CameraIP)

	fresh, err := cs.ListStreams(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, store.lists, "the list read before the upsert must not be cached")
	assert.Equal(t, "10.0.0.5", fresh[0].CameraIP)
}
