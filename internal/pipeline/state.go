// Package pipeline supervises the capture, encode and publish stages:
// a state machine with automatic restart on transient failures.
package pipeline

import "time"

// State is the pipeline lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateStreaming State = "streaming"
	StateStopping  State = "stopping"
	StateFailed    State = "failed"
)

// States lists every pipeline state, for one-hot metrics.
func States() []string {
	return []string{
		string(StateIdle),
		string(StateStarting),
		string(StateStreaming),
		string(StateStopping),
		string(StateFailed),
	}
}

// Snapshot is a point-in-time view of the pipeline for status
// reporting. Regenerated on every read; safe to hand out by value.
type Snapshot struct {
	State     State
	Streaming bool
	StartedAt time.Time

	Width     int
	Height    int
	Framerate int
	Bitrate   int

	Frames   uint64
	Dropped  uint64
	Restarts uint64

	LastError string
}
