package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout formats recording creation times in output names,
// e.g. 7-March-2025-2-05-PM.
const TimestampLayout = "2-January-2006-3-04-PM"

// OutputName returns <timestamp>-<mid>.<ext>.
func OutputName(created time.Time, mid, ext string) string {
	return fmt.Sprintf("%s-%s.%s", created.Format(TimestampLayout), mid, ext)
}

// uniqueOutputPath returns a path in dir for the recording that no existing
// file or reserved name uses, adding -1, -2, ... before the extension.
func uniqueOutputPath(dir string, created time.Time, mid, ext string, reserved func(string) bool) string {
	candidate := filepath.Join(dir, OutputName(created, mid, ext))
	base := strings.TrimSuffix(filepath.Base(candidate), "."+ext)
	for i := 1; taken(candidate, reserved); i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d.%s", base, i, ext))
	}
	return candidate
}

func taken(path string, reserved func(string) bool) bool {
	if reserved != nil && reserved(path) {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// BuildArgs returns the capture command line for a recording.
func BuildArgs(cfg Config, req StartRequest, output string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", cfg.LogLevel,
		"-i", fmt.Sprintf("rtp://%s:%d", req.CameraIP, req.Port),
		"-c:v", "copy",
		"-c:a", cfg.AudioCodec,
		"-f", cfg.Container,
		output,
	}
}
