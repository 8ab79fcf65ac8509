package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

const mysqlConnMaxLifetime = 5 * time.Minute

// mysqlConfig returns the driver config for settings without a database
// selected.
func mysqlConfig(settings *conf.MySQLSettings) *mysqldriver.Config {
	cfg := mysqldriver.NewConfig()
	cfg.User = settings.Username
	cfg.Passwd = settings.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(settings.Host, strconv.Itoa(settings.Port))
	cfg.ParseTime = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// OpenMySQL creates the database if it does not exist, connects to it and
// migrates the schema.
func OpenMySQL(ctx context.Context, settings *conf.MySQLSettings, log logger.Logger, m *metrics.DatastoreMetrics) (*Store, error) {
	if log == nil {
		log = logger.NewDiscard()
	}
	name := settings.Database
	if name == "" || strings.ContainsAny(name, "`/\\") {
		return nil, errors.New(fmt.Errorf("invalid database name %q", name)).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	cfg := mysqlConfig(settings)
	if err := createDatabase(ctx, cfg.FormatDSN(), name); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "create_database").
			Context("host", settings.Host).
			Context("database", name).
			Build()
	}

	cfg.DBName = name
	db, err := gorm.Open(mysql.Open(cfg.FormatDSN()), gormConfig(log))
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open").
			Context("host", settings.Host).
			Context("database", name).
			Build()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetConnMaxLifetime(mysqlConnMaxLifetime)
	}

	store := newStore(db, "mysql", log, m)
	if err := store.migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("mysql store opened",
		logger.String("host", settings.Host),
		logger.Int("port", settings.Port),
		logger.String("database", name))
	return store, nil
}

func createDatabase(ctx context.Context, serverDSN, name string) error {
	db, err := sql.Open("mysql", serverDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"`")
	return err
}

// Open returns the store selected by settings.Type.
func Open(ctx context.Context, settings *conf.DatabaseSettings, log logger.Logger, m *metrics.DatastoreMetrics) (*Store, error) {
	switch settings.Type {
	case conf.DatabaseSQLite:
		return OpenSQLite(ctx, settings.SQLite.Path, log, m)
	case conf.DatabaseMySQL, "":
		return OpenMySQL(ctx, &settings.MySQL, log, m)
	default:
		return nil, errors.New(fmt.Errorf("unsupported database type %q", settings.Type)).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}
