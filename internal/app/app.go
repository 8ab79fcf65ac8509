package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/rtp-recorder/internal/api"
	"github.com/tphakala/rtp-recorder/internal/archive"
	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/datastore"
	"github.com/tphakala/rtp-recorder/internal/detector"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/events"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/mqtt"
	"github.com/tphakala/rtp-recorder/internal/notification"
	"github.com/tphakala/rtp-recorder/internal/observability"
	"github.com/tphakala/rtp-recorder/internal/observability/metrics"
	"github.com/tphakala/rtp-recorder/internal/orchestrator"
	"github.com/tphakala/rtp-recorder/internal/privacy"
	"github.com/tphakala/rtp-recorder/internal/recorder"
)

const (
	shutdownTimeout     = 30 * time.Second
	eventBusDrainWindow = 5 * time.Second
)

// App is the assembled recorder service.
type App struct {
	settings *conf.Settings
	root     logger.Logger // parent of the module loggers
	logger   logger.Logger

	Metrics      *observability.Metrics
	Store        datastore.Interface
	Registry     *feed.Registry
	Uploader     *archive.Uploader
	Supervisor   *recorder.Supervisor
	Orchestrator *orchestrator.Orchestrator
	Server       *api.Server

	bus        *events.EventBus
	mqttClient mqtt.Client
}

// New builds every component. log is the root logger; each component gets
// its own module below it. The metadata store is opened and migrated here,
// so a store failure fails startup.
func New(ctx context.Context, settings *conf.Settings, log logger.Logger) (*App, error) {
	a := &App{settings: settings, root: log, logger: log.Module("main")}

	var err error
	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, err
	}

	store, err := datastore.Open(ctx, &settings.Database, log.Module("datastore"), a.Metrics.Datastore)
	if err != nil {
		return nil, err
	}
	// detection upserts go through the cache so /streams sees them at once
	a.Store = api.NewCachedStore(store, 0)

	if a.Registry, err = feed.NewRegistry(feed.Generate(FeedOptions(settings))); err != nil {
		a.Close()
		return nil, err
	}

	if a.Uploader, err = NewUploader(ctx, settings, log, a.Metrics); err != nil {
		a.Close()
		return nil, err
	}

	a.bus = events.New(events.DefaultConfig(), log.Module("events"))
	if err := a.registerConsumers(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Supervisor = recorder.NewSupervisor(RecorderConfig(settings), recorder.Deps{
		Uploader: a.Uploader,
		States:   a.Registry,
		Events:   a.bus,
		Metrics:  a.Metrics.Recorder,
		Logger:   log.Module("recorder"),
	})

	a.Orchestrator = orchestrator.New(orchestrator.Config{AutoRecord: settings.Detection.AutoRecord}, orchestrator.Deps{
		Registry: a.Registry,
		Detector: detector.New(DetectorConfig(settings), log.Module("detector"), a.Metrics.Detector),
		Store:    a.Store,
		Recorder: a.Supervisor,
		Events:   a.bus,
		Logger:   log.Module("orchestrator"),
	})

	if settings.WebServer.Enabled {
		a.Server, err = api.New(api.ConfigFromSettings(settings),
			api.WithLogger(log.Module("api")),
			api.WithDataStore(a.Store),
			api.WithRecorder(a.Supervisor),
			api.WithRegistry(a.Registry),
			api.WithMetrics(a.Metrics))
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// NewUploader builds the archive uploader for the configured target.
func NewUploader(ctx context.Context, settings *conf.Settings, log logger.Logger, m *observability.Metrics) (*archive.Uploader, error) {
	store, err := archive.NewStore(ctx, &settings.Archive)
	if err != nil {
		return nil, err
	}
	var am *metrics.ArchiveMetrics
	if m != nil {
		am = m.Archive
	}
	archiveLog := log.Module("archive")
	if settings.Archive.Target == "s3" && settings.Archive.S3.AccessKeyID != "" {
		archiveLog.Debug("using static S3 credentials",
			logger.String("access_key_id", privacy.MaskSecret(settings.Archive.S3.AccessKeyID)))
	}
	return archive.NewUploader(store, archive.ConfigFromSettings(&settings.Archive), archiveLog, am), nil
}

func (a *App) registerConsumers(ctx context.Context) error {
	s := a.settings

	if s.MQTT.Enabled {
		cfg := MQTTConfig(s)
		client, err := mqtt.NewClient(cfg, a.root.Module("mqtt"), a.Metrics.MQTT)
		if err != nil {
			return err
		}
		a.mqttClient = client
		// the client reconnects on its own once a first attempt was made
		if err := client.Connect(ctx); err != nil {
			a.logger.Warn("MQTT broker unreachable at startup", logger.Error(err))
		}
		if err := a.bus.RegisterConsumer(mqtt.NewEventPublisher(client, cfg, a.root.Module("mqtt"))); err != nil {
			return err
		}
	}

	if s.Notification.Enabled {
		sender, err := notification.NewSender(s.Notification.URLs, 0)
		if err != nil {
			return err
		}
		n := notification.NewNotifier(sender, s.Main.Name, a.root.Module("notification"))
		if err := a.bus.RegisterConsumer(n); err != nil {
			return err
		}
	}
	return nil
}

// Run restores persisted sources, serves HTTP and runs detection until ctx
// is canceled or the server fails. All recordings are stopped before it returns.
func (a *App) Run(ctx context.Context) error {
	if streams, err := a.Store.ListStreams(ctx); err != nil {
		a.logger.Warn("could not restore persisted streams", logger.Error(err))
	} else {
		defs := make([]feed.Definition, 0, len(streams))
		for i := range streams {
			defs = append(defs, streams[i].Definition())
		}
		if n := a.Orchestrator.Restore(defs); n > 0 {
			a.logger.Info("restored persisted stream sources", logger.Int("streams", n))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.Server != nil {
		g.Go(func() error {
			return a.Server.Serve(gctx)
		})
	}

	if a.settings.Detection.Enabled {
		g.Go(func() error {
			a.Orchestrator.Run(gctx)
			return nil
		})
	}

	// hold until shutdown; detection returning must not stop its recordings
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := a.Supervisor.Shutdown(stopCtx); serr != nil {
		a.logger.Error("recordings did not stop cleanly", logger.Error(serr))
		err = errors.Join(err, serr)
	}
	return err
}

// Close releases every component that was built. It is safe after a failed New.
func (a *App) Close() {
	if a.bus != nil {
		if err := a.bus.Shutdown(eventBusDrainWindow); err != nil {
			a.logger.Warn("event bus did not drain", logger.Error(err))
		}
		stats := a.bus.GetStats()
		a.logger.Debug("event bus stopped",
			logger.Int64("received", int64(stats.EventsReceived)),  //nolint:gosec // counters stay far below MaxInt64
			logger.Int64("dropped", int64(stats.EventsDropped)),    //nolint:gosec // counters stay far below MaxInt64
			logger.Int64("errors", int64(stats.ConsumerErrors)))   //nolint:gosec // counters stay far below MaxInt64
	}
	if a.mqttClient != nil {
		a.mqttClient.Disconnect()
	}
	if a.Uploader != nil {
		if err := a.Uploader.Close(); err != nil {
			a.logger.Warn("archive target close failed", logger.Error(err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.logger.Warn("datastore close failed", logger.Error(err))
		}
	}
}
