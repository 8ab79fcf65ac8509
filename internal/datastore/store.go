package datastore

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

// DefaultSlowQueryThreshold is the duration after which queries are logged as slow.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

// upsertColumns are rewritten when a feed id already exists.
var upsertColumns = []string{"camera_ip", "port", "sender_port", "label", "pt", "codec"}

// Store implements Interface on top of gorm. The dialect is chosen by the
// constructor.
type Store struct {
	DB      *gorm.DB
	dialect string
	metrics *metrics.DatastoreMetrics
	logger  logger.Logger
}

var _ Interface = (*Store)(nil)

func newStore(db *gorm.DB, dialect string, log logger.Logger, m *metrics.DatastoreMetrics) *Store {
	return &Store{DB: db, dialect: dialect, metrics: m, logger: log}
}

func gormConfig(log logger.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("sql"), DefaultSlowQueryThreshold),
	}
}

// migrate creates or updates the streams table.
func (s *Store) migrate(ctx context.Context) error {
	start := time.Now()
	err := s.DB.WithContext(ctx).AutoMigrate(&Stream{})
	s.metrics.RecordOperation(s.dialect, "migrate", err, time.Since(start))
	if err != nil {
		return s.dbError(err, "migrate", "")
	}
	s.logger.Debug("schema ready", logger.String("dialect", s.dialect))
	return nil
}

// UpsertStream implements Interface.
func (s *Store) UpsertStream(ctx context.Context, def feed.Definition) error {
	row := StreamFromDefinition(def)
	start := time.Now()
	err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "mid"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).
		Create(&row).Error
	s.metrics.RecordOperation(s.dialect, "upsert", err, time.Since(start))
	if err != nil {
		return s.dbError(err, "upsert", def.MID)
	}
	return nil
}

// ListStreams implements Interface.
func (s *Store) ListStreams(ctx context.Context) ([]Stream, error) {
	rows := []Stream{}
	start := time.Now()
	err := s.DB.WithContext(ctx).Order("mid").Find(&rows).Error
	s.metrics.RecordOperation(s.dialect, "list", err, time.Since(start))
	if err != nil {
		return nil, s.dbError(err, "list", "")
	}
	return rows, nil
}

// GetStream implements Interface.
func (s *Store) GetStream(ctx context.Context, mid string) (Stream, error) {
	var row Stream
	start := time.Now()
	err := s.DB.WithContext(ctx).Where("mid = ?", mid).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s.metrics.RecordOperation(s.dialect, "get", nil, time.Since(start))
		return Stream{}, errors.New(ErrStreamNotFound).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("mid", mid).
			Build()
	case err != nil:
		s.metrics.RecordOperation(s.dialect, "get", err, time.Since(start))
		return Stream{}, s.dbError(err, "get", mid)
	}
	s.metrics.RecordOperation(s.dialect, "get", nil, time.Since(start))
	return row, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return s.dbError(err, "close", "")
	}
	if err := sqlDB.Close(); err != nil {
		return s.dbError(err, "close", "")
	}
	return nil
}

func (s *Store) dbError(err error, op, mid string) error {
	b := errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Context("dialect", s.dialect)
	if mid != "" {
		b = b.Context("mid", mid)
	}
	return b.Build()
}
