// Package feeds provides the feeds command.
package feeds

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/datastore"
	"github.com/tphakala/rtp-recorder/internal/logger"
)

// Command creates the feeds command.
func Command(settings *conf.Settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "List persisted streams and their detected sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the listing; only warnings go to stderr
			log := logger.NewSlogLogger(cmd.ErrOrStderr(), logger.LogLevelWarn, settings.Location())
			store, err := datastore.Open(cmd.Context(), &settings.Database, log.Module("datastore"), nil)
			if err != nil {
				return err
			}
			defer store.Close()

			streams, err := store.ListStreams(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), streams)
			}
			return writeTable(cmd.OutOrStdout(), streams)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func writeJSON(w io.Writer, streams []datastore.Stream) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(streams)
}

func writeTable(w io.Writer, streams []datastore.Stream) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MID\tPORT\tCAMERA IP\tSENDER PORT\tLABEL\tPT\tCODEC")
	for i := range streams {
		s := &streams[i]
		sender := "-"
		if s.SenderPort != nil {
			sender = strconv.Itoa(*s.SenderPort)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\n", s.MID, s.Port, s.CameraIP, sender, s.Label, s.PT, s.Codec)
	}
	return tw.Flush()
}
