// Package orchestrator wires source detection to persistence and recording.
package orchestrator

import (
	"context"
	"time"

	"github.com/tphakala/rtp-recorder/internal/detector"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/events"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/recorder"
)

// Detector runs detection over a set of feeds.
type Detector interface {
	DetectAll(ctx context.Context, defs []feed.Definition, onResult detector.DetectFunc) detector.Summary
}

// StreamWriter persists a feed definition.
type StreamWriter interface {
	UpsertStream(ctx context.Context, def feed.Definition) error
}

// Starter starts a recording.
type Starter interface {
	Start(ctx context.Context, req recorder.StartRequest) (string, error)
}

// Config controls the detection side effects.
type Config struct {
	AutoRecord bool
}

// Deps are the collaborators. Registry, Detector and Store are required;
// Recorder is required when AutoRecord is set.
type Deps struct {
	Registry *feed.Registry
	Detector Detector
	Store    StreamWriter
	Recorder Starter
	Events   events.Publisher
	Logger   logger.Logger
}

// Orchestrator runs detection for the feed population and reacts to results.
type Orchestrator struct {
	cfg      Config
	registry *feed.Registry
	detector Detector
	store    StreamWriter
	recorder Starter
	events   events.Publisher
	logger   logger.Logger
}

// New returns an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logger.NewDiscard()
	}
	return &Orchestrator{
		cfg:      cfg,
		registry: deps.Registry,
		detector: deps.Detector,
		store:    deps.Store,
		recorder: deps.Recorder,
		events:   deps.Events,
		logger:   deps.Logger,
	}
}

// Run detects sources for every registered feed and blocks until each task
// has resolved or ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) detector.Summary {
	return o.detector.DetectAll(ctx, o.registry.All(), o.HandleResult)
}

// HandleResult applies one detection result. On detection the registry is
// updated first, then the stream is persisted, then the recording starts.
// A persistence failure is logged and does not prevent the recording.
func (o *Orchestrator) HandleResult(ctx context.Context, def feed.Definition, res detector.Result) {
	log := o.logger.With(logger.String("mid", def.MID), logger.Int("port", def.Port))

	if res.Outcome == detector.OutcomeTimedOut {
		if err := o.registry.Transition(def.MID, feed.StateDetectionTimedOut); err != nil {
			log.Debug("feed state not updated", logger.Error(err))
		}
		return
	}
	if !res.Detected() {
		// bind conflicts and errors abandon detection for this feed
		return
	}

	// A feed already moved on by a manual start keeps its state, but the
	// detected source is still applied and persisted.
	transitioned := true
	updated, err := o.registry.MarkDetected(def.MID, res.Source)
	switch {
	case errors.Is(err, feed.ErrInvalidTransition):
		transitioned = false
		if err := o.registry.SetSource(def.MID, res.Source); err != nil {
			log.Warn("detected source could not be applied", logger.Error(err))
			return
		}
		updated, _ = o.registry.Get(def.MID)
		log.Info("source detected for a feed past detection, state kept",
			logger.String("source", res.Source.String()),
			logger.String("state", o.stateOf(def.MID)))
	case err != nil:
		log.Warn("detected source for unknown feed", logger.Error(err))
		return
	}

	senderPort := 0
	if updated.SenderPort != nil {
		senderPort = *updated.SenderPort
	}
	o.publish(events.LifecycleEvent{
		Type:       events.TypeDetected,
		MID:        updated.MID,
		CameraIP:   updated.CameraIP,
		SenderPort: senderPort,
	})

	if err := o.store.UpsertStream(ctx, updated); err != nil {
		log.Error("failed to persist detected stream",
			logger.String("source", res.Source.String()),
			logger.Error(err))
	}

	if !transitioned || !o.cfg.AutoRecord || o.recorder == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	output, err := o.recorder.Start(ctx, StartRequestFor(updated))
	if err != nil {
		log.Error("automatic recording failed to start", logger.Error(err))
		return
	}
	log.Info("automatic recording started", logger.String("output", output))
}

func (o *Orchestrator) stateOf(mid string) string {
	state, err := o.registry.State(mid)
	if err != nil {
		return "unknown-feed"
	}
	return state.String()
}

func (o *Orchestrator) publish(e events.LifecycleEvent) {
	if o.events != nil {
		e.Timestamp = time.Now()
		o.events.TryPublish(e)
	}
}

// Restore copies sources persisted by an earlier run into the registry so
// manual starts work before detection completes. It returns how many feeds
// were restored.
func (o *Orchestrator) Restore(defs []feed.Definition) int {
	n := 0
	for i := range defs {
		def := &defs[i]
		if !def.HasSource() {
			continue
		}
		src := feed.Source{IP: def.CameraIP}
		if def.SenderPort != nil {
			src.Port = *def.SenderPort
		}
		if err := o.registry.SetSource(def.MID, src); err != nil {
			o.logger.Debug("persisted stream not in feed population",
				logger.String("mid", def.MID),
				logger.Error(err))
			continue
		}
		n++
	}
	return n
}

// StartRequestFor builds a recording request from a feed definition.
func StartRequestFor(def feed.Definition) recorder.StartRequest {
	return recorder.StartRequest{
		MID:         def.MID,
		CameraIP:    def.CameraIP,
		Port:        def.Port,
		Label:       def.Label,
		PayloadType: def.PayloadType,
		Codec:       def.Codec,
	}
}
