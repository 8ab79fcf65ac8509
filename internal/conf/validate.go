// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateMainSettings,
		validateFeedSettings,
		validateDetectionSettings,
		validateRecordingSettings,
		validateArchiveSettings,
		validateDatabaseSettings,
		validateWebServerSettings,
		validateMQTTSettings,
		validateSentrySettings,
		validateJanusSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateMainSettings(s *Settings) error {
	switch s.Main.Timezone {
	case "", "Local", "UTC":
		return nil
	}
	if _, err := time.LoadLocation(s.Main.Timezone); err != nil {
		return fmt.Errorf("main.timezone %q is not a valid timezone: %w", s.Main.Timezone, err)
	}
	return nil
}

// validateFeedSettings checks the generated population fits the port range.
func validateFeedSettings(s *Settings) error {
	var errs []string
	f := s.Feeds

	if f.Count < 1 || f.Count > MaxFeeds {
		errs = append(errs, fmt.Sprintf("feeds.count must be between 1 and %d, got %d", MaxFeeds, f.Count))
	}
	if f.StartPort < 1 || f.StartPort+f.Count-1 > 65535 {
		errs = append(errs, fmt.Sprintf("feeds.startport %d with count %d exceeds the UDP port range", f.StartPort, f.Count))
	}
	if f.IDPrefix == "" {
		errs = append(errs, "feeds.idprefix must not be empty")
	}
	if f.PayloadType < 0 || f.PayloadType > 127 {
		errs = append(errs, fmt.Sprintf("feeds.payloadtype must be between 0 and 127, got %d", f.PayloadType))
	}
	if f.Codec == "" {
		errs = append(errs, "feeds.codec must not be empty")
	}

	return joinErrors("feed settings", errs)
}

func validateDetectionSettings(s *Settings) error {
	d := s.Detection
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Timeout <= 0 {
		errs = append(errs, "detection.timeout must be positive")
	}
	if net.ParseIP(d.BindAddress) == nil {
		errs = append(errs, fmt.Sprintf("detection.bindaddress %q is not an IP address", d.BindAddress))
	}
	if d.MaxConcurrent < 0 {
		errs = append(errs, "detection.maxconcurrent must not be negative")
	}
	return joinErrors("detection settings", errs)
}

func validateRecordingSettings(s *Settings) error {
	var errs []string
	r := s.Recording

	if r.FfmpegPath == "" {
		errs = append(errs, "recording.ffmpegpath must not be empty")
	}
	if r.OutputDir == "" {
		errs = append(errs, "recording.outputdir must not be empty")
	}
	if r.Duration <= 0 {
		errs = append(errs, "recording.duration must be positive")
	}
	if r.StopTimeout <= 0 {
		errs = append(errs, "recording.stoptimeout must be positive")
	}
	if r.Container == "" {
		errs = append(errs, "recording.container must not be empty")
	}
	for _, code := range r.CleanExitCodes {
		if code < 0 || code > 255 {
			errs = append(errs, fmt.Sprintf("recording.cleanexitcodes entry %d is outside 0..255", code))
		}
	}

	return joinErrors("recording settings", errs)
}

// validateArchiveSettings checks that the selected target has what it needs to connect.
func validateArchiveSettings(s *Settings) error {
	var errs []string
	a := s.Archive

	if a.Timeout <= 0 {
		errs = append(errs, "archive.timeout must be positive")
	}
	if a.Breaker.FailureThreshold == 0 {
		errs = append(errs, "archive.breaker.failurethreshold must be at least 1")
	}

	switch a.Target {
	case ArchiveS3:
		if a.S3.Region == "" {
			errs = append(errs, "archive.s3.region is required")
		}
		if a.S3.Endpoint != "" {
			if u, err := url.Parse(a.S3.Endpoint); err != nil || u.Scheme == "" {
				errs = append(errs, fmt.Sprintf("archive.s3.endpoint %q is not a valid URL", a.S3.Endpoint))
			}
		}
	case ArchiveLocal:
		if a.Local.Path == "" {
			errs = append(errs, "archive.local.path is required")
		}
	case ArchiveSFTP:
		if a.SFTP.Host == "" {
			errs = append(errs, "archive.sftp.host is required")
		}
		if a.SFTP.Password == "" && a.SFTP.KeyFile == "" {
			errs = append(errs, "archive.sftp requires a password or keyfile")
		}
	case ArchiveFTP:
		if a.FTP.Host == "" {
			errs = append(errs, "archive.ftp.host is required")
		}
	case ArchiveGDrive:
		if a.GDrive.CredentialsFile == "" {
			errs = append(errs, "archive.gdrive.credentialsfile is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("archive.target must be one of %s, got %q", strings.Join(ArchiveTargets, ", "), a.Target))
	}

	return joinErrors("archive settings", errs)
}

func validateDatabaseSettings(s *Settings) error {
	var errs []string
	db := s.Database

	switch db.Type {
	case DatabaseMySQL:
		if db.MySQL.Host == "" {
			errs = append(errs, "database.mysql.host is required")
		}
		if !identifierPattern.MatchString(db.MySQL.Database) {
			errs = append(errs, fmt.Sprintf("database.mysql.database %q must contain only letters, digits and underscores", db.MySQL.Database))
		}
	case DatabaseSQLite:
		if db.SQLite.Path == "" {
			errs = append(errs, "database.sqlite.path is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.type must be %q or %q, got %q", DatabaseMySQL, DatabaseSQLite, db.Type))
	}

	return joinErrors("database settings", errs)
}

func validateWebServerSettings(s *Settings) error {
	w := s.WebServer
	if !w.Enabled {
		return nil
	}
	var errs []string
	if _, _, err := net.SplitHostPort(w.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("webserver.listen %q is not host:port: %v", w.Listen, err))
	}
	if w.MaxConnections < 0 {
		errs = append(errs, "webserver.maxconnections must not be negative")
	}
	return joinErrors("webserver settings", errs)
}

func validateMQTTSettings(s *Settings) error {
	m := s.MQTT
	if !m.Enabled {
		return nil
	}
	var errs []string
	if m.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}
	if m.Topic == "" {
		errs = append(errs, "mqtt.topic is required when mqtt is enabled")
	}
	return joinErrors("mqtt settings", errs)
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry settings: sentry.dsn is required when sentry is enabled")
	}
	return nil
}

func validateJanusSettings(s *Settings) error {
	switch s.Janus.Layout {
	case JanusLayoutMultistream, JanusLayoutPerStream:
		return nil
	}
	return fmt.Errorf("janus settings: janus.layout must be %q or %q, got %q",
		JanusLayoutMultistream, JanusLayoutPerStream, s.Janus.Layout)
}

func joinErrors(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s: %s", section, strings.Join(errs, "; "))
}
