package archive

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestGDriveStore_Put(t *testing.T) {
	t.Parallel()

	var uploads atomic.Int32
	var body atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
			return
		}
		data, _ := io.ReadAll(r.Body)
		body.Store(string(data))
		uploads.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"file-1"}`)
	}))
	t.Cleanup(srv.Close)

	s, err := NewGDriveStore(t.Context(), GDriveConfig{
		FolderID: "folder-123",
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithHTTPClient(srv.Client()),
			option.WithoutAuthentication(),
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.Put(t.Context(), "recordings/clip.mp4", strings.NewReader("payload"), 7))
	assert.Equal(t, int32(1), uploads.Load())
	sent, _ := body.Load().(string)
	assert.Contains(t, sent, "payload")
	assert.Contains(t, sent, "folder-123")
}

func TestNewGDriveStore_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewGDriveStore(t.Context(), GDriveConfig{})
	require.Error(t, err)
	_, err = NewGDriveStore(t.Context(), GDriveConfig{FolderID: "f"})
	require.Error(t, err)
}
