// env.go - environment variable bindings for rtp-recorder
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		// Database, names kept from the original deployment
		{"database.mysql.host", "DB_HOST", nil},
		{"database.mysql.username", "DB_USER", nil},
		{"database.mysql.password", "DB_PASSWORD", nil},
		{"database.mysql.database", "DB_NAME", validateEnvIdentifier},
		{"database.mysql.port", "DB_PORT", validateEnvPort},
		{"database.type", "RTPREC_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "RTPREC_SQLITE_PATH", nil},

		// Object storage
		{"archive.s3.region", "AWS_REGION", nil},
		{"archive.s3.accesskeyid", "AWS_ACCESS_KEY_ID", nil},
		{"archive.s3.secretaccesskey", "AWS_SECRET_ACCESS_KEY", nil},
		{"archive.s3.bucket", "S3_BUCKET", nil},
		{"archive.s3.endpoint", "RTPREC_S3_ENDPOINT", validateEnvURL},
		{"archive.target", "RTPREC_ARCHIVE_TARGET", validateEnvArchiveTarget},

		// Feeds and detection
		{"feeds.count", "RTPREC_FEEDS_COUNT", validateEnvFeedCount},
		{"feeds.startport", "RTPREC_FEEDS_STARTPORT", validateEnvPort},
		{"detection.enabled", "RTPREC_DETECTION_ENABLED", validateEnvBool},
		{"detection.timeout", "RTPREC_DETECTION_TIMEOUT", validateEnvDuration},
		{"detection.autorecord", "RTPREC_DETECTION_AUTORECORD", validateEnvBool},

		// Recording
		{"recording.ffmpegpath", "RTPREC_FFMPEG_PATH", nil},
		{"recording.outputdir", "RTPREC_OUTPUT_DIR", nil},
		{"recording.duration", "RTPREC_RECORDING_DURATION", validateEnvDuration},

		// Web server and integrations
		{"webserver.listen", "RTPREC_LISTEN", nil},
		{"mqtt.broker", "RTPREC_MQTT_BROKER", validateEnvURL},
		{"mqtt.username", "RTPREC_MQTT_USERNAME", nil},
		{"mqtt.password", "RTPREC_MQTT_PASSWORD", nil},
		{"sentry.dsn", "RTPREC_SENTRY_DSN", validateEnvURL},
		{"debug", "RTPREC_DEBUG", validateEnvBool},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0", value)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvFeedCount(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid feed count: %w", err)
	}
	if n < 1 || n > MaxFeeds {
		return fmt.Errorf("feed count must be between 1 and %d, got %d", MaxFeeds, n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", value)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host")
	}
	return nil
}

func validateEnvIdentifier(value string) error {
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("'%s' must contain only letters, digits and underscores", value)
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch value {
	case DatabaseMySQL, DatabaseSQLite:
		return nil
	}
	return fmt.Errorf("database type must be %q or %q, got %q", DatabaseMySQL, DatabaseSQLite, value)
}

func validateEnvArchiveTarget(value string) error {
	for _, t := range ArchiveTargets {
		if value == t {
			return nil
		}
	}
	return fmt.Errorf("archive target must be one of %s, got %q", strings.Join(ArchiveTargets, ", "), value)
}
