// Package conf loads, validates and persists rtp-recorder settings.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/rtp-recorder/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains process-wide settings.
type MainSettings struct {
	Name     string // instance name, used as MQTT client id and in notifications
	Timezone string // "Local", "UTC" or IANA name for log timestamps and file names
}

// LoggingSettings contains log output settings.
type LoggingSettings struct {
	Level        string            // default level: trace, debug, info, warn, error
	File         string            // optional JSON log file
	FileLevel    string            // level for the JSON log file
	ModuleLevels map[string]string // per-module overrides, e.g. datastore: trace
}

// FeedSettings describes the generated feed population.
type FeedSettings struct {
	Count       int    // number of feeds, 1..1000
	StartPort   int    // port of the first feed
	IDPrefix    string // feed id prefix, ids are <prefix>%03d
	PayloadType int    // RTP payload type
	Codec       string // video codec name
}

// DetectionSettings controls the per-feed source detectors.
type DetectionSettings struct {
	Enabled       bool          // run detection at startup
	BindAddress   string        // listen address, 0.0.0.0 for all interfaces
	Timeout       time.Duration // listening window per feed
	AutoRecord    bool          // start a recording when a source is detected
	MaxConcurrent int           // detectors running at once, 0 for all feeds
}

// RecordingSettings controls the capture subprocess.
type RecordingSettings struct {
	FfmpegPath       string        // path to ffmpeg
	OutputDir        string        // directory for local artifacts
	Duration         time.Duration // automatic stop after this long
	StopTimeout      time.Duration // wait after SIGINT before killing the process group
	AudioCodec       string        // audio encoder, video is always copied
	Container        string        // output container format and file extension
	LogLevel         string        // ffmpeg -loglevel
	CleanExitCodes   []int         // exit codes treated as a clean stop
	ArchiveOnFailure bool          // archive artifacts of captures that exited uncleanly
}

// S3Settings configures the S3 archive target.
type S3Settings struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3 compatible stores
	UsePathStyle    bool
}

// LocalTargetSettings configures the local directory archive target.
type LocalTargetSettings struct {
	Path string
}

// SFTPSettings configures the SFTP archive target.
type SFTPSettings struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KeyFile        string // private key, used instead of the password when set
	KnownHostsFile string
	BasePath       string
	Timeout        time.Duration
}

// FTPSettings configures the FTP archive target.
type FTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	BasePath string
	Timeout  time.Duration
}

// GDriveSettings configures the Google Drive archive target.
type GDriveSettings struct {
	CredentialsFile string // service account JSON
	FolderID        string // parent folder for uploads
}

// BreakerSettings configures the archive circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive failures before opening
	Timeout          time.Duration // open state duration before a trial upload
}

// ArchiveSettings selects and configures the archive target.
type ArchiveSettings struct {
	Target  string        // s3, local, sftp, ftp or gdrive
	Prefix  string        // object key prefix
	Timeout time.Duration // per upload
	Breaker BreakerSettings
	S3      S3Settings
	Local   LocalTargetSettings
	SFTP    SFTPSettings
	FTP     FTPSettings
	GDrive  GDriveSettings
}

// MySQLSettings contains MySQL connection settings.
type MySQLSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	Database string
}

// SQLiteSettings contains SQLite settings.
type SQLiteSettings struct {
	Path string
}

// DatabaseSettings selects the metadata store backend.
type DatabaseSettings struct {
	Type   string // mysql or sqlite
	MySQL  MySQLSettings
	SQLite SQLiteSettings
}

// WebServerSettings contains HTTP server settings.
type WebServerSettings struct {
	Enabled        bool
	Listen         string
	MaxConnections int // 0 for no limit
	Debug          bool
}

// TelemetrySettings enables the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool
}

// SentrySettings enables error reporting.
type SentrySettings struct {
	Enabled bool
	DSN     string
}

// MQTTSettings contains settings for lifecycle event publishing.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // tcp://host:port
	Topic    string // base topic
	Username string
	Password string
	ClientID string
}

// NotificationSettings contains shoutrrr push notification settings.
type NotificationSettings struct {
	Enabled bool
	URLs    []string
}

// JanusSettings controls streaming plugin config generation.
type JanusSettings struct {
	AdminKey     string
	Secret       string
	Layout       string // multistream or per-stream
	RecordingDir string
	Record       bool
	Output       string
}

// Settings contains all configuration options for rtp-recorder.
type Settings struct {
	Debug bool

	Main         MainSettings
	Logging      LoggingSettings
	Feeds        FeedSettings
	Detection    DetectionSettings
	Recording    RecordingSettings
	Archive      ArchiveSettings
	Database     DatabaseSettings
	WebServer    WebServerSettings
	Telemetry    TelemetrySettings
	Sentry       SentrySettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Janus        JanusSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	configFileFlag   string
)

// SetConfigFile pins the configuration file instead of searching the default paths.
func SetConfigFile(path string) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	configFileFlag = path
}

// Load reads the configuration file and environment, validates, and stores the result.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, binds the environment and reads the config file.
// A missing config file is created from the embedded default.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		// invalid env values are reported but do not stop startup
		fmt.Fprintln(os.Stderr, err)
	}

	if configFileFlag != "" {
		viper.SetConfigFile(configFileFlag)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("operation", "read-config").
				Context("path", configFileFlag).
				Build()
		}
		return nil
	}

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Fprintln(os.Stderr, "Created default config file at:", configPath)
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded default configuration.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		// the file is embedded at build time
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return string(data)
}

// WriteDefaultConfig writes the embedded default config to path. Existing files
// are kept unless overwrite is set.
func WriteDefaultConfig(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.Newf("config file %s already exists", path).
			Category(errors.CategoryConflict).
			Build()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	return os.WriteFile(path, []byte(getDefaultConfig()), 0o600)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ConfigFileUsed returns the path of the loaded config file.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// SaveYAMLConfig writes settings to configPath atomically.
// Comments and ordering of the existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
