package api

import (
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/tphakala/rtp-recorder/internal/buildinfo"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version"`
	BuildDate        string  `json:"build_date"`
	Uptime           string  `json:"uptime"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Feeds            int     `json:"feeds"`
	ActiveRecordings int     `json:"active_recordings"`
	OpenFDs          *int32  `json:"open_fds,omitempty"` // absent where the platform cannot report it
	Timestamp        string  `json:"timestamp"`
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)
	info := buildinfo.Current()

	resp := HealthResponse{
		Status:           "healthy",
		Version:          info.GetVersion(),
		BuildDate:        info.GetBuildDate(),
		Uptime:           uptime.Round(time.Second).String(),
		UptimeSeconds:    uptime.Seconds(),
		ActiveRecordings: len(s.recorder.Active()),
		OpenFDs:          openFDs(),
		Timestamp:        time.Now().Format(time.RFC3339),
	}
	if s.registry != nil {
		resp.Feeds = s.registry.Len()
	}
	return c.JSON(http.StatusOK, resp)
}

func openFDs() *int32 {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return nil
	}
	n, err := proc.NumFDs()
	if err != nil {
		return nil
	}
	return &n
}
