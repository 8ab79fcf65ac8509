package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetViper isolates tests that go through the global viper instance.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	SetConfigFile("")
	t.Cleanup(func() {
		viper.Reset()
		SetConfigFile("")
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EmbeddedDefaults(t *testing.T) {
	resetViper(t)
	SetConfigFile(writeConfig(t, getDefaultConfig()))

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, settings.Feeds.Count)
	assert.Equal(t, 5001, settings.Feeds.StartPort)
	assert.Equal(t, "VT", settings.Feeds.IDPrefix)
	assert.Equal(t, 100, settings.Feeds.PayloadType)
	assert.Equal(t, "h264", settings.Feeds.Codec)
	assert.Equal(t, 10*time.Second, settings.Detection.Timeout)
	assert.Equal(t, 60*time.Second, settings.Recording.Duration)
	assert.Equal(t, 5*time.Second, settings.Recording.StopTimeout)
	assert.Equal(t, []int{0, 255}, settings.Recording.CleanExitCodes)
	assert.False(t, settings.Recording.ArchiveOnFailure)
	assert.Equal(t, "rtp_streams", settings.Database.MySQL.Database)
	assert.Equal(t, ":3000", settings.WebServer.Listen)
	assert.Equal(t, JanusLayoutMultistream, settings.Janus.Layout)
	assert.Same(t, settings, GetSettings())
}

func TestLoad_DefaultsFillMissingKeys(t *testing.T) {
	resetViper(t)
	SetConfigFile(writeConfig(t, "feeds:\n  count: 4\n  startport: 7001\n"))

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, settings.Feeds.Count)
	assert.Equal(t, 7001, settings.Feeds.StartPort)
	assert.Equal(t, "VT", settings.Feeds.IDPrefix)
	assert.Equal(t, "ffmpeg", settings.Recording.FfmpegPath)
	assert.Equal(t, ArchiveS3, settings.Archive.Target)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "cams")
	t.Setenv("S3_BUCKET", "video-archive")
	t.Setenv("AWS_REGION", "eu-north-1")
	t.Setenv("RTPREC_FEEDS_COUNT", "12")
	SetConfigFile(writeConfig(t, getDefaultConfig()))

	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", settings.Database.MySQL.Host)
	assert.Equal(t, "cams", settings.Database.MySQL.Database)
	assert.Equal(t, "video-archive", settings.Archive.S3.Bucket)
	assert.Equal(t, "eu-north-1", settings.Archive.S3.Region)
	assert.Equal(t, 12, settings.Feeds.Count)
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	resetViper(t)
	SetConfigFile(writeConfig(t, "feeds:\n  count: 5000\ndatabase:\n  type: postgres\n"))

	_, err := Load()
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, err.Error(), "feeds.count")
	assert.Contains(t, err.Error(), "database.type")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	resetViper(t)
	SetConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestSaveYAMLConfig_RoundTrip(t *testing.T) {
	resetViper(t)
	SetConfigFile(writeConfig(t, getDefaultConfig()))
	settings, err := Load()
	require.NoError(t, err)

	settings.Feeds.Count = 3
	settings.Recording.Duration = 90 * time.Second
	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	viper.Reset()
	SetConfigFile(path)
	reloaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, reloaded.Feeds.Count)
	assert.Equal(t, 90*time.Second, reloaded.Recording.Duration)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file should be renamed away")
}

func TestWriteDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "startport: 5001")

	err = WriteDefaultConfig(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, WriteDefaultConfig(path, true))
}

func TestSettingsLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tz   string
		want string
	}{
		{"", "Local"},
		{"Local", "Local"},
		{"UTC", "UTC"},
		{"Not/AZone", "Local"},
	}
	for _, tt := range tests {
		s := &Settings{Main: MainSettings{Timezone: tt.tz}}
		assert.Equal(t, tt.want, s.Location().String(), "timezone %q", tt.tz)
	}
}
