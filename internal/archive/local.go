package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/rtp-recorder/internal/errors"
)

const (
	permDir  = 0o750
	permFile = 0o640
)

// LocalStore archives into a directory, for example a mounted network share.
type LocalStore struct {
	root string
}

// NewLocalStore returns a store rooted at dir, creating it if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New(errors.NewStd("local: path is required")).
			Component("archive").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(dir, permDir); err != nil {
		return nil, errors.New(err).
			Component("archive").
			Category(errors.CategoryFileIO).
			Context("path", dir).
			Build()
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) Name() string { return "local" }

// Put writes the object through a temporary file and a rename, so a
// partially written object is never visible under key.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	target, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), permDir); err != nil {
		return fmt.Errorf("local: failed to create directory: %w", err)
	}
	return atomicWriteFile(target, ".upload-*", permFile, func(f *os.File) error {
		if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
			return fmt.Errorf("local: failed to write %s: %w", key, err)
		}
		return nil
	})
}

func (s *LocalStore) Close() error { return nil }

// resolve maps key below root and rejects keys escaping it.
func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New(fmt.Errorf("local: invalid key %q", key)).
			Component("archive").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.root, clean), nil
}

// atomicWriteFile writes to a temporary file in the target directory and
// renames it into place.
func atomicWriteFile(targetPath, tempPattern string, perm os.FileMode, write func(*os.File) error) error {
	tempFile, err := os.CreateTemp(filepath.Dir(targetPath), tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if err := tempFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := write(tempFile); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	success = true
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

// readerWithContext stops a copy once ctx is done.
func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
