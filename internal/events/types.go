// Package events provides an asynchronous bus that decouples recording
// lifecycle events from MQTT publishing and push notifications.
package events

import (
	"time"
)

// Type names a lifecycle event.
type Type string

const (
	TypeDetected Type = "detected"
	TypeStarted  Type = "started"
	TypeStopped  Type = "stopped"
	TypeArchived Type = "archived"
	TypeFailed   Type = "failed"
)

// Stage names where a failure happened.
const (
	StageSpawn   = "spawn"
	StageCapture = "capture"
	StageUpload  = "upload"
)

// LifecycleEvent describes a change in a feed's recording lifecycle.
type LifecycleEvent struct {
	Type       Type      `json:"event"`
	MID        string    `json:"mid"`
	SessionID  string    `json:"session_id,omitempty"`
	CameraIP   string    `json:"camera_ip,omitempty"`
	SenderPort int       `json:"sender_port,omitempty"`
	OutputFile string    `json:"output_file,omitempty"`
	RemoteKey  string    `json:"remote_key,omitempty"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventConsumer processes lifecycle events
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessEvent processes a single event
	ProcessEvent(event LifecycleEvent) error
}

// Publisher accepts events without blocking.
type Publisher interface {
	TryPublish(event LifecycleEvent) bool
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived  uint64
	EventsProcessed uint64
	EventsDropped   uint64
	ConsumerErrors  uint64
}
