package feed

import (
	"github.com/tphakala/rtp-recorder/internal/errors"
)

// State is the lifecycle state of a feed.
type State int

const (
	StateUnknown State = iota
	StateDetected
	StateRecording
	StateStopped
	StateArchived
	StateDetectionTimedOut
	StateSpawnFailed
)

var stateNames = map[State]string{
	StateUnknown:           "unknown",
	StateDetected:          "detected",
	StateRecording:         "recording",
	StateStopped:           "stopped",
	StateArchived:          "archived",
	StateDetectionTimedOut: "detection-timed-out",
	StateSpawnFailed:       "spawn-failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "invalid"
}

// ErrInvalidTransition is returned for a state change outside the transition table.
var ErrInvalidTransition = errors.NewStd("invalid feed state transition")

var transitions = map[State][]State{
	StateUnknown:           {StateDetected, StateDetectionTimedOut, StateRecording, StateSpawnFailed},
	StateDetected:          {StateRecording, StateSpawnFailed},
	StateDetectionTimedOut: {StateRecording, StateSpawnFailed},
	StateSpawnFailed:       {StateRecording, StateSpawnFailed},
	StateRecording:         {StateStopped},
	StateStopped:           {StateArchived, StateRecording, StateSpawnFailed},
	StateArchived:          {StateRecording, StateSpawnFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
