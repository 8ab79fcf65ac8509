// Package janus provides the janus command.
package janus

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtp-recorder/internal/app"
	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/feed"
	jcfg "github.com/tphakala/rtp-recorder/internal/janus"
)

// Command creates the janus command.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		output   string
		layout   string
		toStdout bool
	)

	cmd := &cobra.Command{
		Use:   "janus",
		Short: "Generate the Janus streaming plugin config for the feed population",
		Long: `Janus writes janus.plugin.streaming.jcfg with one media entry per feed.
The multistream layout puts every feed in one mountpoint; per-stream gives
each feed its own mountpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := jcfg.OptionsFromSettings(&settings.Janus)
			if layout != "" {
				opts.Layout = layout
			}
			defs := feed.Generate(app.FeedOptions(settings))

			if toStdout {
				return jcfg.Generate(cmd.OutOrStdout(), defs, opts)
			}
			if output == "" {
				output = settings.Janus.Output
			}
			if err := jcfg.WriteFile(output, defs, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d stream configs in %s\n", len(defs), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: janus.output)")
	cmd.Flags().StringVar(&layout, "layout", "", "Mountpoint layout: multistream or per-stream (default: janus.layout)")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Write to stdout instead of a file")
	return cmd
}
