package datastore

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(t.Context(), MemoryPath, logger.NewDiscard(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

func TestUpsertStream_InsertThenUpdate(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	def := feed.Definition{MID: "VT003", Port: 5003, Label: "5003", PayloadType: 100, Codec: "h264", CameraIP: feed.UnknownSource}
	require.NoError(t, s.UpsertStream(t.Context(), def))

	got, err := s.GetStream(t.Context(), "VT003")
	require.NoError(t, err)
	assert.Equal(t, "unknown", got.CameraIP)
	assert.Nil(t, got.SenderPort)

	def.CameraIP = "10.0.0.5"
	def.SenderPort = intPtr(40000)
	require.NoError(t, s.UpsertStream(t.Context(), def))
	require.NoError(t, s.UpsertStream(t.Context(), def))

	got, err = s.GetStream(t.Context(), "VT003")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", got.CameraIP)
	require.NotNil(t, got.SenderPort)
	assert.Equal(t, 40000, *got.SenderPort)
	assert.Equal(t, def, got.Definition())

	all, err := s.ListStreams(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestListStreams_OrderedByMID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, def := range []feed.Definition{
		{MID: "VT010", Port: 5010, Label: "5010"},
		{MID: "VT002", Port: 5002, Label: "5002"},
		{MID: "VT001", Port: 5001, Label: "5001"},
	} {
		require.NoError(t, s.UpsertStream(t.Context(), def))
	}

	all, err := s.ListStreams(t.Context())
	require.NoError(t, err)
	mids := make([]string, 0, len(all))
	for _, st := range all {
		mids = append(mids, st.MID)
	}
	assert.Equal(t, []string{"VT001", "VT002", "VT010"}, mids)
}

func TestListStreams_EmptyIsNotNil(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	all, err := s.ListStreams(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestGetStream_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetStream(t.Context(), "VT999")
	require.ErrorIs(t, err, ErrStreamNotFound)
	assert.True(t, errors.IsNotFound(err))
}

func TestStore_ClosedReturnsDatabaseError(t *testing.T) {
	t.Parallel()
	s, err := OpenSQLite(t.Context(), MemoryPath, logger.NewDiscard(), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.ListStreams(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryDatabase))
}

func TestOpenSQLite_FileAndMetrics(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "data", "streams.db")
	s, err := OpenSQLite(t.Context(), path, logger.NewDiscard(), m)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UpsertStream(t.Context(), feed.Definition{MID: "VT001", Port: 5001}))
	assert.FileExists(t, path)
	assert.Positive(t, testutil.CollectAndCount(m))
}

func TestOpen_SelectsBackend(t *testing.T) {
	t.Parallel()

	s, err := Open(t.Context(), &conf.DatabaseSettings{Type: conf.DatabaseSQLite}, logger.NewDiscard(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", s.dialect)
	require.NoError(t, s.Close())

	_, err = Open(t.Context(), &conf.DatabaseSettings{Type: "postgres"}, logger.NewDiscard(), nil)
	require.Error(t, err)
}

func TestOpenMySQL_RejectsBadDatabaseName(t *testing.T) {
	t.Parallel()

	_, err := OpenMySQL(t.Context(), &conf.MySQLSettings{Host: "localhost", Port: 3306, Database: "x`; DROP"}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestMySQLConfig_DSN(t *testing.T) {
	t.Parallel()

	cfg := mysqlConfig(&conf.MySQLSettings{Host: "db", Port: 3306, Username: "rec", Password: "p@ss"})
	dsn := cfg.FormatDSN()
	assert.True(t, strings.HasPrefix(dsn, "rec:p@ss@tcp(db:3306)/?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	cfg.DBName = "rtp_streams"
	assert.Contains(t, cfg.FormatDSN(), "@tcp(db:3306)/rtp_streams?")
}
