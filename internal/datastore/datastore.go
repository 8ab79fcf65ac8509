// Package datastore persists the feed population and detected sources.
package datastore

import (
	"context"
	"time"

	"github.com/tphakala/rtp-recorder/internal/errors"
	"github.com/tphakala/rtp-recorder/internal/feed"
)

// ErrStreamNotFound is returned when no row exists for a feed id.
var ErrStreamNotFound = errors.NewStd("stream not found")

// Interface is the metadata store used by the HTTP API and the orchestrator.
type Interface interface {
	// UpsertStream inserts the feed or updates its source and layout
	// columns when the feed id already exists.
	UpsertStream(ctx context.Context, def feed.Definition) error
	// ListStreams returns all streams ordered by feed id.
	ListStreams(ctx context.Context) ([]Stream, error)
	// GetStream returns one stream or ErrStreamNotFound.
	GetStream(ctx context.Context, mid string) (Stream, error)
	Close() error
}

// Stream is a row of the streams table.
type Stream struct {
	MID        string    `gorm:"column:mid;primaryKey;size:50" json:"mid"`
	CameraIP   string    `gorm:"column:camera_ip;size:45" json:"camera_ip"`
	Port       int       `gorm:"column:port;not null" json:"port"`
	SenderPort *int      `gorm:"column:sender_port" json:"sender_port"`
	Label      string    `gorm:"column:label;size:50" json:"label"`
	PT         int       `gorm:"column:pt" json:"pt"`
	Codec      string    `gorm:"column:codec;size:50" json:"codec"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"-"`
}

// TableName implements gorm's tabler.
func (Stream) TableName() string {
	return "streams"
}

// StreamFromDefinition converts a feed definition to a row.
func StreamFromDefinition(def feed.Definition) Stream {
	return Stream{
		MID:        def.MID,
		CameraIP:   def.CameraIP,
		Port:       def.Port,
		SenderPort: def.SenderPort,
		Label:      def.Label,
		PT:         def.PayloadType,
		Codec:      def.Codec,
	}
}

// Definition converts the row back to a feed definition.
func (s Stream) Definition() feed.Definition {
	return feed.Definition{
		MID:         s.MID,
		Port:        s.Port,
		Label:       s.Label,
		PayloadType: s.PT,
		Codec:       s.Codec,
		CameraIP:    s.CameraIP,
		SenderPort:  s.SenderPort,
	}
}
