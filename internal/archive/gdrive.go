package archive

import (
	"context"
	"fmt"
	"io"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// GDriveConfig configures a GDriveStore.
type GDriveConfig struct {
	CredentialsFile string
	FolderID        string

	// ClientOptions replace the credentials file when set.
	ClientOptions []option.ClientOption
}

// GDriveStore archives into a Google Drive folder. Drive has no paths, so
// the file is named after the last key element and the full key is kept
// as an app property.
type GDriveStore struct {
	service  *drive.Service
	folderID string
}

// NewGDriveStore returns a store uploading into cfg.FolderID.
func NewGDriveStore(ctx context.Context, cfg GDriveConfig) (*GDriveStore, error) {
	if cfg.FolderID == "" {
		return nil, configError("gdrive", "folder id is required")
	}
	opts := cfg.ClientOptions
	if len(opts) == 0 {
		if cfg.CredentialsFile == "" {
			return nil, configError("gdrive", "credentials file is required")
		}
		opts = []option.ClientOption{
			option.WithCredentialsFile(cfg.CredentialsFile),
			option.WithScopes(drive.DriveFileScope),
		}
	}

	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, configError("gdrive", fmt.Sprintf("failed to create client: %v", err))
	}
	return &GDriveStore{service: service, folderID: cfg.FolderID}, nil
}

func (s *GDriveStore) Name() string { return "gdrive" }

func (s *GDriveStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	file := &drive.File{
		Name:          path.Base(key),
		Parents:       []string{s.folderID},
		MimeType:      contentType(key),
		AppProperties: map[string]string{"key": key},
	}
	_, err := s.service.Files.Create(file).
		Media(r).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return networkError("gdrive", fmt.Errorf("gdrive: upload failed: %w", err))
	}
	return nil
}

func (s *GDriveStore) Close() error { return nil }
