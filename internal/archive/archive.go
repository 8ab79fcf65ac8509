// Package archive moves finished recordings to durable storage.
//
// An Uploader streams the artifact to a Store, and removes the local file
// only after the store confirmed the write. Failed uploads leave the file
// in place for manual recovery.
package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/bytes"
	"github.com/sony/gobreaker/v2"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

// Sentinel errors
var (
	ErrUploadFailed       = errors.NewStd("upload failed")
	ErrArchiveUnavailable = errors.NewStd("archive temporarily unavailable")
)

const (
	DefaultPrefix           = "recordings"
	DefaultTimeout          = 5 * time.Minute
	DefaultFailureThreshold = 5
	DefaultBreakerTimeout   = 60 * time.Second
)

// Artifact is a finished local recording.
type Artifact struct {
	MID       string
	Path      string
	CreatedAt time.Time
	SessionID string
}

// ObjectKey returns the remote key for an artifact: <prefix>/<file name>.
func ObjectKey(prefix string, a Artifact) string {
	name := filepath.Base(a.Path)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Store writes objects to a storage backend.
type Store interface {
	// Name returns the target name, e.g. "s3".
	Name() string
	// Put writes size bytes from r under key. It returns only after the
	// backend confirmed the write.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	Close() error
}

// Config controls an Uploader.
type Config struct {
	Prefix           string
	Timeout          time.Duration
	FailureThreshold uint32
	BreakerTimeout   time.Duration
}

// Uploader archives artifacts through a circuit breaker.
type Uploader struct {
	store   Store
	cfg     Config
	breaker *gobreaker.CircuitBreaker[struct{}]
	metrics *metrics.ArchiveMetrics
	logger  logger.Logger
}

// NewUploader returns an Uploader writing to store.
func NewUploader(store Store, cfg Config, log logger.Logger, m *metrics.ArchiveMetrics) *Uploader {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultBreakerTimeout
	}
	if log == nil {
		log = logger.NewDiscard()
	}

	u := &Uploader{
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  log.With(logger.String("target", store.Name())),
	}
	u.breaker = newBreaker(store.Name(), cfg, u.logger, m)
	m.SetBreakerState(store.Name(), int(gobreaker.StateClosed))
	return u
}

// Target returns the store name.
func (u *Uploader) Target() string {
	return u.store.Name()
}

// Upload streams the artifact to the store and returns its remote key.
// The local file is deleted only after a confirmed write.
func (u *Uploader) Upload(ctx context.Context, a Artifact) (string, error) {
	key := ObjectKey(u.cfg.Prefix, a)
	log := u.logger.WithContext(ctx).With(
		logger.String("mid", a.MID),
		logger.String("key", key))

	f, err := os.Open(a.Path) //nolint:gosec // path is produced by the recorder
	if err != nil {
		return "", u.fail(ErrUploadFailed, err, a, key, errors.CategoryFileIO, 0)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", u.fail(ErrUploadFailed, err, a, key, errors.CategoryFileIO, 0)
	}
	size := info.Size()

	ctx, cancel := context.WithTimeout(ctx, u.cfg.Timeout)
	defer cancel()

	start := time.Now()
	_, err = u.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, u.store.Put(ctx, key, f, size)
	})
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			u.metrics.RecordUpload(u.store.Name(), "unavailable", size, elapsed)
			log.Warn("archive unavailable, artifact retained", logger.String("path", a.Path))
			return "", u.fail(ErrArchiveUnavailable, err, a, key, errors.CategoryArchive, elapsed)
		}
		u.metrics.RecordUpload(u.store.Name(), metrics.ResultError, size, elapsed)
		log.Error("upload failed, artifact retained",
			logger.String("path", a.Path),
			logger.Duration("elapsed", elapsed),
			logger.Error(err))
		return "", u.fail(ErrUploadFailed, err, a, key, errors.CategoryArchive, elapsed)
	}

	u.metrics.RecordUpload(u.store.Name(), metrics.ResultSuccess, size, elapsed)
	_ = f.Close()
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		log.Warn("uploaded artifact could not be removed locally",
			logger.String("path", a.Path),
			logger.Error(err))
	}

	log.Info("artifact archived",
		logger.String("size", bytes.Format(size)),
		logger.Duration("elapsed", elapsed))
	return key, nil
}

func (u *Uploader) fail(sentinel, cause error, a Artifact, key string, category errors.ErrorCategory, elapsed time.Duration) error {
	b := errors.New(errors.Join(sentinel, cause)).
		Component("archive").
		Category(category).
		Context("target", u.store.Name()).
		Context("mid", a.MID).
		Context("key", key).
		Context("path", a.Path)
	if elapsed > 0 {
		b = b.Timing("upload", elapsed)
	}
	return b.Build()
}

// Close releases the store.
func (u *Uploader) Close() error {
	return u.store.Close()
}

func contentType(key string) string {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".ts":
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}
