// Package recorder supervises ffmpeg capture sessions, at most one per feed.
package recorder

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/rtp-recorder/internal/archive"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/events"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
)

// Sentinel errors. Returned errors wrap these; test with errors.Is.
var (
	ErrAlreadyActive = errors.NewStd("recording already active")
	ErrNotActive     = errors.NewStd("recording not active")
	ErrSpawnFailed   = errors.NewStd("failed to spawn capture process")
	ErrCaptureFailed = errors.NewStd("capture process exited uncleanly")
	ErrNoSource      = errors.NewStd("source address not detected")
	ErrShuttingDown  = errors.NewStd("recorder is shutting down")
)

// Stop triggers, used in logs and metrics.
const (
	TriggerManual   = "manual"
	TriggerAuto     = "auto"
	TriggerShutdown = "shutdown"
)

// Config controls capture sessions.
type Config struct {
	FfmpegPath       string
	OutputDir        string
	Duration         time.Duration
	StopTimeout      time.Duration
	AudioCodec       string
	Container        string
	LogLevel         string
	CleanExitCodes   []int
	ArchiveOnFailure bool
	Location         *time.Location
}

// DefaultConfig returns the capture defaults.
func DefaultConfig() Config {
	return Config{
		FfmpegPath:     "ffmpeg",
		OutputDir:      ".",
		Duration:       60 * time.Second,
		StopTimeout:    5 * time.Second,
		AudioCodec:     "aac",
		Container:      "mp4",
		LogLevel:       "error",
		CleanExitCodes: []int{0, 255},
		Location:       time.Local,
	}
}

// Uploader archives finished recordings.
type Uploader interface {
	Upload(ctx context.Context, a archive.Artifact) (string, error)
}

// StateTracker records feed state transitions.
type StateTracker interface {
	Transition(mid string, to feed.State) error
}

// Deps are the collaborators of a Supervisor. Only Uploader is required.
type Deps struct {
	Uploader Uploader
	Spawner  Spawner // defaults to ExecSpawner
	States   StateTracker
	Events   events.Publisher
	Metrics  *metrics.RecorderMetrics
	Logger   logger.Logger
}

// StartRequest identifies the feed and source to record.
type StartRequest struct {
	MID         string
	CameraIP    string
	Port        int
	Label       string
	PayloadType int
	Codec       string
}

type sessionState int

const (
	sessionStarting sessionState = iota
	sessionRecording
	sessionStopping
)

// Session is one active capture.
type Session struct {
	ID         string
	Request    StartRequest
	OutputPath string
	CreatedAt  time.Time

	state  sessionState
	proc   Process
	timer  *time.Timer
	stderr *stderrLog
}

// Snapshot is a read-only view of an active recording.
type Snapshot struct {
	SessionID   string
	MID         string
	Label       string
	Port        int
	PayloadType int
	Codec       string
	CameraIP    string
	OutputFile  string
	StartedAt   time.Time
}

// Supervisor owns the set of active recordings.
type Supervisor struct {
	cfg      Config
	uploader Uploader
	spawner  Spawner
	states   StateTracker
	events   events.Publisher
	metrics  *metrics.RecorderMetrics
	logger   logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	issued   map[string]struct{} // every output path handed out; never pruned
	closed   bool
	live     sync.WaitGroup // one count per reserved session until it is released
}

// NewSupervisor returns a Supervisor. Zero config values take the defaults.
func NewSupervisor(cfg Config, deps Deps) *Supervisor {
	def := DefaultConfig()
	if cfg.FfmpegPath == "" {
		cfg.FfmpegPath = def.FfmpegPath
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.Duration <= 0 {
		cfg.Duration = def.Duration
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.AudioCodec == "" {
		cfg.AudioCodec = def.AudioCodec
	}
	if cfg.Container == "" {
		cfg.Container = def.Container
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.CleanExitCodes == nil {
		cfg.CleanExitCodes = def.CleanExitCodes
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if deps.Spawner == nil {
		deps.Spawner = ExecSpawner{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewDiscard()
	}

	return &Supervisor{
		cfg:      cfg,
		uploader: deps.Uploader,
		spawner:  deps.Spawner,
		states:   deps.States,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
		issued:   make(map[string]struct{}),
	}
}

// Start spawns a capture for req.MID and schedules its automatic stop.
// It returns the output file name.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (string, error) {
	log := s.logger.WithContext(ctx).With(logger.String("mid", req.MID))

	if req.CameraIP == "" || req.CameraIP == feed.UnknownSource {
		return "", errors.New(ErrNoSource).
			Component("recorder").
			Category(errors.CategoryValidation).
			Context("mid", req.MID).
			Build()
	}

	sess, err := s.reserve(req)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		s.release(sess)
		s.live.Done()
		return "", s.spawnFailed(log, sess, err)
	}

	sess.stderr = newStderrLog(s.logger.Module("ffmpeg").With(
		logger.String("mid", req.MID),
		logger.String("session_id", sess.ID)))

	args := BuildArgs(s.cfg, req, sess.OutputPath)
	proc, err := s.spawner.Spawn(CommandSpec{Path: s.cfg.FfmpegPath, Args: args, Stderr: sess.stderr})
	if err != nil {
		s.release(sess)
		s.live.Done()
		return "", s.spawnFailed(log, sess, err)
	}

	s.mu.Lock()
	sess.proc = proc
	sess.state = sessionRecording
	delay := s.cfg.Duration
	if s.closed {
		// shutdown began while spawning
		delay = 0
	}
	sess.timer = time.AfterFunc(delay, func() { s.autoStop(sess) })
	s.mu.Unlock()

	s.transition(req.MID, feed.StateRecording)
	s.metrics.RecordStart(metrics.ResultSuccess)
	s.publish(events.LifecycleEvent{
		Type:       events.TypeStarted,
		MID:        req.MID,
		SessionID:  sess.ID,
		CameraIP:   req.CameraIP,
		OutputFile: filepath.Base(sess.OutputPath),
	})

	log.Info("recording started",
		logger.String("session_id", sess.ID),
		logger.String("camera_ip", req.CameraIP),
		logger.Int("port", req.Port),
		logger.Int("pid", proc.Pid()),
		logger.String("output", sess.OutputPath),
		logger.Duration("duration", s.cfg.Duration))

	return filepath.Base(sess.OutputPath), nil
}

// reserve claims the feed's slot before anything is spawned.
func (s *Supervisor) reserve(req StartRequest) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New(ErrShuttingDown).
			Component("recorder").
			Category(errors.CategoryState).
			Context("mid", req.MID).
			Build()
	}
	if _, exists := s.sessions[req.MID]; exists {
		s.metrics.RecordStart("already-active")
		return nil, errors.New(ErrAlreadyActive).
			Component("recorder").
			Category(errors.CategoryConflict).
			Context("mid", req.MID).
			Build()
	}

	created := s.now().In(s.cfg.Location)
	sess := &Session{
		ID:        uuid.NewString(),
		Request:   req,
		CreatedAt: created,
		state:     sessionStarting,
	}
	sess.OutputPath = uniqueOutputPath(s.cfg.OutputDir, created, req.MID, s.cfg.Container, s.pathReservedLocked)
	s.issued[sess.OutputPath] = struct{}{}
	s.sessions[req.MID] = sess
	s.live.Add(1)
	return sess, nil
}

// pathReservedLocked reports whether path was issued earlier in this process.
// Archived files are deleted locally, so the disk alone cannot tell.
func (s *Supervisor) pathReservedLocked(path string) bool {
	_, ok := s.issued[path]
	return ok
}

func (s *Supervisor) release(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sess.Request.MID] == sess {
		delete(s.sessions, sess.Request.MID)
	}
}

func (s *Supervisor) spawnFailed(log logger.Logger, sess *Session, cause error) error {
	s.transition(sess.Request.MID, feed.StateSpawnFailed)
	s.metrics.RecordStart("spawn-failed")
	s.publish(events.LifecycleEvent{
		Type:      events.TypeFailed,
		MID:       sess.Request.MID,
		SessionID: sess.ID,
		Stage:     events.StageSpawn,
		Error:     cause.Error(),
	})
	log.Error("failed to spawn capture process",
		logger.String("ffmpeg", s.cfg.FfmpegPath),
		logger.Error(cause))

	return errors.New(errors.Join(ErrSpawnFailed, cause)).
		Component("recorder").
		Category(errors.CategoryCommandExecution).
		Context("mid", sess.Request.MID).
		Context("ffmpeg_path", s.cfg.FfmpegPath).
		Build()
}

// Stop ends the active recording of mid, archives it and returns the output file name.
func (s *Supervisor) Stop(ctx context.Context, mid string) (string, error) {
	return s.stop(ctx, mid, nil, TriggerManual)
}

func (s *Supervisor) autoStop(sess *Session) {
	_, err := s.stop(context.Background(), sess.Request.MID, sess, TriggerAuto)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotActive):
		s.logger.Debug("auto stop skipped, recording already stopped",
			logger.String("mid", sess.Request.MID),
			logger.String("session_id", sess.ID))
	default:
		s.logger.Warn("auto stop finished with error",
			logger.String("mid", sess.Request.MID),
			logger.String("session_id", sess.ID),
			logger.Error(err))
	}
}

// claim marks the session as stopping. When expected is set only that
// session instance may be claimed.
func (s *Supervisor) claim(mid string, expected *Session) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[mid]
	if !ok || sess.state != sessionRecording || (expected != nil && sess != expected) {
		return nil, errors.New(ErrNotActive).
			Component("recorder").
			Category(errors.CategoryState).
			Context("mid", mid).
			Build()
	}
	sess.state = sessionStopping
	if sess.timer != nil {
		sess.timer.Stop()
	}
	return sess, nil
}

func (s *Supervisor) stop(ctx context.Context, mid string, expected *Session, trigger string) (string, error) {
	sess, err := s.claim(mid, expected)
	if err != nil {
		return "", err
	}
	defer s.live.Done()

	// termination and archival must finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	log := s.logger.WithContext(ctx).With(
		logger.String("mid", mid),
		logger.String("session_id", sess.ID),
		logger.String("trigger", trigger))
	name := filepath.Base(sess.OutputPath)

	status := s.terminate(log, sess)
	elapsed := s.now().Sub(sess.CreatedAt)
	clean := slices.Contains(s.cfg.CleanExitCodes, status.Code)
	s.metrics.RecordExit(status.Code, clean)

	s.release(sess)
	s.transition(mid, feed.StateStopped)
	s.publish(events.LifecycleEvent{
		Type:       events.TypeStopped,
		MID:        mid,
		SessionID:  sess.ID,
		OutputFile: name,
		ExitCode:   &status.Code,
	})

	if !clean {
		tail := sess.stderr.Tail()
		log.Error("capture process exited uncleanly",
			logger.Int("exit_code", status.Code),
			logger.Error(status.Err),
			logger.String("stderr_tail", tail))

		if !s.cfg.ArchiveOnFailure {
			s.metrics.RecordStop(trigger, "capture-failed", elapsed)
			capErr := errors.New(ErrCaptureFailed).
				Component("recorder").
				Category(errors.CategoryRecording).
				Context("mid", mid).
				Context("exit_code", status.Code).
				Context("output", sess.OutputPath).
				Build()
			s.publish(events.LifecycleEvent{
				Type:       events.TypeFailed,
				MID:        mid,
				SessionID:  sess.ID,
				OutputFile: name,
				ExitCode:   &status.Code,
				Stage:      events.StageCapture,
				Error:      capErr.Error(),
			})
			log.Warn("artifact retained locally", logger.String("output", sess.OutputPath))
			return name, capErr
		}
	}

	key, err := s.uploader.Upload(ctx, archive.Artifact{
		MID:       mid,
		Path:      sess.OutputPath,
		CreatedAt: sess.CreatedAt,
		SessionID: sess.ID,
	})
	if err != nil {
		s.metrics.RecordStop(trigger, "upload-failed", elapsed)
		s.publish(events.LifecycleEvent{
			Type:       events.TypeFailed,
			MID:        mid,
			SessionID:  sess.ID,
			OutputFile: name,
			Stage:      events.StageUpload,
			Error:      err.Error(),
		})
		log.Error("archival failed, artifact retained locally",
			logger.String("output", sess.OutputPath),
			logger.Error(err))
		return name, err
	}

	s.transition(mid, feed.StateArchived)
	s.metrics.RecordStop(trigger, metrics.ResultSuccess, elapsed)
	s.publish(events.LifecycleEvent{
		Type:       events.TypeArchived,
		MID:        mid,
		SessionID:  sess.ID,
		OutputFile: name,
		RemoteKey:  key,
	})
	log.Info("recording stopped and archived",
		logger.String("key", key),
		logger.Int("exit_code", status.Code),
		logger.Duration("elapsed", elapsed))

	return name, nil
}

// terminate interrupts the subprocess and waits for it, killing the process
// group when it outlives the stop timeout.
func (s *Supervisor) terminate(log logger.Logger, sess *Session) ExitStatus {
	if err := sess.proc.Signal(os.Interrupt); err != nil {
		log.Warn("failed to interrupt capture process", logger.Error(err))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	status, err := sess.proc.WaitExit(waitCtx)
	cancel()
	if err == nil {
		return status
	}

	log.Warn("capture process ignored interrupt, killing process group",
		logger.Int("pid", sess.proc.Pid()),
		logger.Duration("stop_timeout", s.cfg.StopTimeout))
	if err := sess.proc.Kill(); err != nil {
		log.Error("failed to kill capture process group", logger.Error(err))
	}
	status, _ = sess.proc.WaitExit(context.Background())
	return status
}

// Active returns the recordings currently capturing, ordered by feed id.
func (s *Supervisor) Active() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.state != sessionRecording {
			continue
		}
		r := sess.Request
		out = append(out, Snapshot{
			SessionID:   sess.ID,
			MID:         r.MID,
			Label:       r.Label,
			Port:        r.Port,
			PayloadType: r.PayloadType,
			Codec:       r.Codec,
			CameraIP:    r.CameraIP,
			OutputFile:  filepath.Base(sess.OutputPath),
			StartedAt:   sess.CreatedAt,
		})
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		switch {
		case a.MID < b.MID:
			return -1
		case a.MID > b.MID:
			return 1
		}
		return 0
	})
	return out
}

// IsActive reports whether mid has a running capture.
func (s *Supervisor) IsActive(mid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[mid]
	return ok && sess.state == sessionRecording
}

// Shutdown refuses new starts, stops every active recording with archival,
// and waits until every session, including ones still spawning, is released.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	mids := make([]string, 0, len(s.sessions))
	for mid, sess := range s.sessions {
		if sess.state == sessionRecording {
			mids = append(mids, mid)
		}
	}
	s.mu.Unlock()

	s.logger.Info("stopping active recordings", logger.Int("count", len(mids)))

	var g errgroup.Group
	var errMu sync.Mutex
	var errs []error
	for _, mid := range mids {
		g.Go(func() error {
			if _, err := s.stop(ctx, mid, nil, TriggerShutdown); err != nil && !errors.Is(err, ErrNotActive) {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		s.live.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	return errors.Join(errs...)
}

func (s *Supervisor) transition(mid string, to feed.State) {
	if s.states == nil {
		return
	}
	if err := s.states.Transition(mid, to); err != nil {
		s.logger.Debug("feed state not updated",
			logger.String("mid", mid),
			logger.String("to", to.String()),
			logger.Error(err))
	}
}

func (s *Supervisor) publish(e events.LifecycleEvent) {
	if s.events == nil {
		return
	}
	e.Timestamp = s.now()
	s.events.TryPublish(e)
}
