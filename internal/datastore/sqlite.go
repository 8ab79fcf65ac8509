package datastore

import (
	"context"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// OpenSQLite opens (creating if needed) the SQLite database at path and
// migrates the schema.
func OpenSQLite(ctx context.Context, path string, log logger.Logger, m *metrics.DatastoreMetrics) (*Store, error) {
	if log == nil {
		log = logger.NewDiscard()
	}
	if path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, errors.New(err).
					Component("datastore").
					Category(errors.CategoryFileIO).
					Context("path", path).
					Build()
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig(log))
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("dialect", "sqlite").
			Build()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	// SQLite allows one writer; every :memory: connection is a new database
	sqlDB.SetMaxOpenConns(1)

	store := newStore(db, "sqlite", log, m)
	if err := store.migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("sqlite store opened", logger.String("path", path))
	return store, nil
}
