//go:build integration

package datastore

import (
	"strconv"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
)

func TestMySQLStore_Integration(t *testing.T) {
	ctx := t.Context()

	container, err := tcmysql.Run(ctx, "mysql:8.0",
		tcmysql.WithUsername("root"),
		tcmysql.WithPassword("password"),
		tcmysql.WithDatabase("bootstrap"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port("3306/tcp"))
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	// the streams database does not exist yet
	settings := &conf.MySQLSettings{
		Host:     host,
		Port:     portNum,
		Username: "root",
		Password: "password",
		Database: "rtp_streams",
	}
	s, err := OpenMySQL(ctx, settings, logger.NewDiscard(), nil)
	require.NoError(t, err)
	defer s.Close()

	def := feed.Definition{MID: "VT001", Port: 5001, Label: "5001", PayloadType: 100, Codec: "h264", CameraIP: "10.0.0.9"}
	require.NoError(t, s.UpsertStream(ctx, def))
	def.CameraIP = "10.0.0.10"
	require.NoError(t, s.UpsertStream(ctx, def))

	got, err := s.GetStream(ctx, "VT001")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", got.CameraIP)

	// reopening against the existing database is idempotent
	again, err := OpenMySQL(ctx, settings, logger.NewDiscard(), nil)
	require.NoError(t, err)
	defer again.Close()
	all, err := again.ListStreams(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
