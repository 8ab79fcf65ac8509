// Package serve provides the serve command.
package serve

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtp-recorder/internal/app"
	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/telemetry"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run detection, recording and the HTTP API",
		Long: `Serve opens the metadata store, starts the HTTP API, listens for the first
RTP packet on every feed port and records detected feeds until SIGINT or SIGTERM.
Active recordings are stopped and archived before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, settings)
		},
	}
}

func run(ctx context.Context, settings *conf.Settings) error {
	central, log, err := app.NewLogger(settings)
	if err != nil {
		return err
	}
	defer func() { _ = central.Close() }()
	mainLog := log.Module("main")

	flush, err := telemetry.InitSentry(settings)
	if err != nil {
		mainLog.Warn("error reporting disabled", logger.Error(err))
	}
	defer flush()

	a, err := app.New(ctx, settings, log)
	if err != nil {
		mainLog.Error("startup failed", logger.Error(err))
		return err
	}
	defer a.Close()

	mainLog.Info("rtp-recorder started",
		logger.String("config", conf.ConfigFileUsed()),
		logger.Int("feeds", a.Registry.Len()),
		logger.String("archive", a.Uploader.Target()),
		logger.Bool("detection", settings.Detection.Enabled),
		logger.Bool("webserver", settings.WebServer.Enabled))

	err = a.Run(ctx)
	mainLog.Info("rtp-recorder stopped")
	return err
}
