package archive

import (
	"context"

	"github.com/tphakala/rtp-recorder/internal/conf"
)

// NewStore builds the Store selected by settings.Target.
func NewStore(ctx context.Context, settings *conf.ArchiveSettings) (Store, error) {
	switch settings.Target {
	case conf.ArchiveS3, "":
		s := settings.S3
		return NewS3Store(ctx, S3Config{
			Region:          s.Region,
			Bucket:          s.Bucket,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
			Endpoint:        s.Endpoint,
			UsePathStyle:    s.UsePathStyle,
		})
	case conf.ArchiveLocal:
		return NewLocalStore(settings.Local.Path)
	case conf.ArchiveSFTP:
		s := settings.SFTP
		return NewSFTPStore(SFTPConfig{
			Host:           s.Host,
			Port:           s.Port,
			Username:       s.Username,
			Password:       s.Password,
			KeyFile:        s.KeyFile,
			KnownHostsFile: s.KnownHostsFile,
			BasePath:       s.BasePath,
			Timeout:        s.Timeout,
		})
	case conf.ArchiveFTP:
		s := settings.FTP
		return NewFTPStore(FTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password,
			BasePath: s.BasePath,
			Timeout:  s.Timeout,
		})
	case conf.ArchiveGDrive:
		return NewGDriveStore(ctx, GDriveConfig{
			CredentialsFile: settings.GDrive.CredentialsFile,
			FolderID:        settings.GDrive.FolderID,
		})
	default:
		return nil, configError(settings.Target, "unknown archive target")
	}
}

// ConfigFromSettings returns the uploader configuration.
func ConfigFromSettings(settings *conf.ArchiveSettings) Config {
	return Config{
		Prefix:           settings.Prefix,
		Timeout:          settings.Timeout,
		FailureThreshold: settings.Breaker.FailureThreshold,
		BreakerTimeout:   settings.Breaker.Timeout,
	}
}
