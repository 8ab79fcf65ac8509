// Package upload provides the upload command.
package upload

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/rtp-recorder/internal/app"
	"github.com/tphakala/rtp-recorder/internal/archive"
	"github.com/tphakala/rtp-recorder/internal/conf"
	"github.com/tphakala/rtp-recorder/internal/errors"
)

// Command creates the upload command.
func Command(settings *conf.Settings) *cobra.Command {
	var mid string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Archive a retained recording",
		Long: `Upload sends a recording that was kept after a failed capture or upload to
the configured archive target. The local file is deleted only when the
upload succeeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return errors.New(err).
					Component("upload").
					Category(errors.CategoryFileIO).
					Context("path", path).
					Build()
			}

			central, log, err := app.NewLogger(settings)
			if err != nil {
				return err
			}
			defer func() { _ = central.Close() }()

			uploader, err := app.NewUploader(cmd.Context(), settings, log, nil)
			if err != nil {
				return err
			}
			defer uploader.Close()

			key, err := uploader.Upload(cmd.Context(), archive.Artifact{
				MID:       mid,
				Path:      path,
				CreatedAt: info.ModTime(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to %s as %s\n", filepath.Base(path), uploader.Target(), key)
			return nil
		},
	}

	cmd.Flags().StringVar(&mid, "mid", "", "Feed id the recording belongs to")
	_ = cmd.MarkFlagRequired("mid")
	return cmd
}
