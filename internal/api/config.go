// Package api serves the recorder control surface over HTTP.
package api

import (
	"time"

	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/errors"
)

// Default constants for the HTTP server.
const (
	DefaultListen          = ":3000"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 2 * time.Minute // a stop waits for capture exit and upload
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultStreamsCacheTTL = 30 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Listen         string
	MaxConnections int // 0 for no limit

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// StreamsCacheTTL bounds how long a /streams result is served from memory.
	// Upserts through the cached store invalidate it earlier.
	StreamsCacheTTL time.Duration

	Metrics bool // serve /metrics
	Debug   bool
}

// DefaultConfig returns a Config with the defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          DefaultListen,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		StreamsCacheTTL: DefaultStreamsCacheTTL,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings.WebServer.Listen != "" {
		cfg.Listen = settings.WebServer.Listen
	}
	cfg.MaxConnections = settings.WebServer.MaxConnections
	cfg.Metrics = settings.Telemetry.Enabled
	cfg.Debug = settings.WebServer.Debug || settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.ValidationError("listen address is required")
	}
	if c.MaxConnections < 0 {
		return errors.ValidationError("max connections must not be negative")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.ValidationError("read and write timeouts must be positive")
	}
	return nil
}
