// Package cmd wires the rtp-recorder command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/tphakala/rtp-recorder/cmd/config"
	"github.com/tphakala/rtp-recorder/cmd/feeds"
	"github.com/tphakala/rtp-recorder/cmd/janus"
	"github.com/tphakala/rtp-recorder/cmd/serve"
	"github.com/tphakala/rtp-recorder/cmd/upload"
	"github.com/tphakala/rtp-recorder/internal/buildinfo"
	"github.com/tphakala/rtp-recorder/internal/conf"
)

// skipConfigAnnotation marks commands that run without loading settings.
const skipConfigAnnotation = "skip-config"

// RootCommand creates and returns the root command. Settings are loaded into
// settings before any subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "rtp-recorder",
		Short:         "Detects RTP camera feeds, records them with ffmpeg and archives the recordings",
		Version:       buildinfo.Current().GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the config file (default: search standard locations)")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}

	configCmd := configcmd.Command(settings)
	for _, sub := range configCmd.Commands() {
		if sub.Name() == "init" {
			sub.Annotations = map[string]string{skipConfigAnnotation: "true"}
		}
	}

	rootCmd.AddCommand(
		serve.Command(settings),
		feeds.Command(settings),
		janus.Command(settings),
		upload.Command(settings),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if skipConfig(cmd) {
			return nil
		}
		if configFile != "" {
			conf.SetConfigFile(configFile)
		}
		loaded, err := conf.Load()
		if err != nil {
			return err
		}
		*settings = *loaded
		return nil
	}

	return rootCmd
}

func skipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
