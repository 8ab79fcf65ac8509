package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/net/netutil"

	"github.com/tphakala/rtp-recorder/internal/datastore"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability"
	"github.com/tphakala/rtp-recorder/internal/recorder"
)

// Recorder is the part of the recording supervisor the API drives.
type Recorder interface {
	Start(ctx context.Context, req recorder.StartRequest) (string, error)
	Stop(ctx context.Context, mid string) (string, error)
	Active() []recorder.Snapshot
}

// Server is the HTTP server. It owns the echo instance and its listener.
type Server struct {
	echo   *echo.Echo
	config *Config
	logger logger.Logger

	store    datastore.Interface
	recorder Recorder
	registry *feed.Registry
	metrics  *observability.Metrics

	startTime time.Time
	listener  net.Listener
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.logger = log
	}
}

// WithDataStore sets the stream metadata store.
func WithDataStore(ds datastore.Interface) ServerOption {
	return func(s *Server) {
		s.store = ds
	}
}

// WithRecorder sets the recording supervisor.
func WithRecorder(r Recorder) ServerOption {
	return func(s *Server) {
		s.recorder = r
	}
}

// WithRegistry sets the feed registry reported on /health.
func WithRegistry(r *feed.Registry) ServerOption {
	return func(s *Server) {
		s.registry = r
	}
}

// WithMetrics sets the metrics served on /metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates the server and registers its routes. It does not listen.
func New(config *Config, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{config: config, startTime: time.Now()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.NewDiscard()
	}
	if s.store == nil || s.recorder == nil {
		return nil, errors.New(errors.NewStd("api server requires a datastore and a recorder")).
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		},
	}))
	s.echo.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
				logger.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}
			s.logger.Debug("request", fields...)
			return nil
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.POST("/start/:mid", s.startRecording)
	s.echo.POST("/stop/:mid", s.stopRecording)
	s.echo.GET("/streams", s.listStreams)
	s.echo.GET("/live-streams", s.liveStreams)
	s.echo.GET("/health", s.healthCheck)
	if s.config.Metrics && s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Listen binds the configured address, capped at MaxConnections when set.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("listen", s.config.Listen).
			Build()
	}
	if s.config.MaxConnections > 0 {
		l = netutil.LimitListener(l, s.config.MaxConnections)
	}
	s.listener = l
	s.echo.Listener = l
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve listens if needed and serves until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("HTTP server listening",
		logger.String("address", s.listener.Addr().String()),
		logger.Int("max_connections", s.config.MaxConnections))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown failed", logger.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
