package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/rtp-recorder/internal/datastore"
	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
	"github.com/tphakala/rtp-recorder/internal/recorder"
)

// Response messages.
const (
	msgStreamNotFound   = "Stream not found"
	msgSourceNotFound   = "RTP IP not detected yet"
	msgRecordingStarted = "Recording started"
	msgRecordingStopped = "Recording stopped"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RecordingResponse is the body of a successful start or stop.
type RecordingResponse struct {
	Message    string `json:"message"`
	OutputFile string `json:"outputFile"`
}

// LiveStream is one entry of /live-streams.
type LiveStream struct {
	MID    string           `json:"mid"`
	IsLive bool             `json:"isLive"`
	Config LiveStreamConfig `json:"config"`
}

// LiveStreamConfig describes the feed being recorded.
type LiveStreamConfig struct {
	MID      string `json:"mid"`
	Label    string `json:"label"`
	Port     int    `json:"port"`
	PT       int    `json:"pt"`
	Codec    string `json:"codec"`
	CameraIP string `json:"camera_ip"`
}

func (s *Server) startRecording(c echo.Context) error {
	ctx := c.Request().Context()
	mid := c.Param("mid")
	log := s.logger.WithContext(ctx).With(logger.String("mid", mid))

	stream, err := s.store.GetStream(ctx, mid)
	switch {
	case errors.Is(err, datastore.ErrStreamNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: msgStreamNotFound})
	case err != nil:
		log.Error("stream lookup failed", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}

	if stream.CameraIP == "" || stream.CameraIP == feed.UnknownSource {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msgSourceNotFound})
	}

	output, err := s.recorder.Start(ctx, recorder.StartRequest{
		MID:         stream.MID,
		CameraIP:    stream.CameraIP,
		Port:        stream.Port,
		Label:       stream.Label,
		PayloadType: stream.PT,
		Codec:       stream.Codec,
	})
	if err != nil {
		log.Warn("start request failed", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, RecordingResponse{Message: msgRecordingStarted, OutputFile: output})
}

func (s *Server) stopRecording(c echo.Context) error {
	ctx := c.Request().Context()
	mid := c.Param("mid")

	output, err := s.recorder.Stop(ctx, mid)
	if err != nil {
		s.logger.WithContext(ctx).Warn("stop request failed",
			logger.String("mid", mid),
			logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, RecordingResponse{Message: msgRecordingStopped, OutputFile: output})
}

func (s *Server) listStreams(c echo.Context) error {
	streams, err := s.store.ListStreams(c.Request().Context())
	if err != nil {
		s.logger.Error("listing streams failed", logger.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
	if streams == nil {
		streams = []datastore.Stream{}
	}
	return c.JSON(http.StatusOK, streams)
}

func (s *Server) liveStreams(c echo.Context) error {
	active := s.recorder.Active()
	live := make([]LiveStream, 0, len(active))
	for i := range active {
		a := &active[i]
		live = append(live, LiveStream{
			MID:    a.MID,
			IsLive: true,
			Config: LiveStreamConfig{
				MID:      a.MID,
				Label:    a.Label,
				Port:     a.Port,
				PT:       a.PayloadType,
				Codec:    a.Codec,
				CameraIP: a.CameraIP,
			},
		})
	}
	return c.JSON(http.StatusOK, live)
}
