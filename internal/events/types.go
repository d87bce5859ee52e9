// Package events provides a typed in-process event bus for pipeline
// notifications.
package events

// Event type constants for kelindar/event.
const (
	TypeStateChanged uint32 = iota + 1
	TypeRestartScheduled
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// StateChangedEvent is published on every pipeline state transition.
// The status reporter subscribes to it so status output never lags a
// transition.
type StateChangedEvent struct {
	From      string `json:"from" example:"starting" doc:"Previous pipeline state"`
	To        string `json:"to" example:"streaming" doc:"New pipeline state"`
	Reason    string `json:"reason,omitempty" doc:"Failure cause, when transitioning to failed"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// RestartScheduledEvent is published when the retry policy schedules an
// automatic restart after a failure.
type RestartScheduledEvent struct {
	Attempt   int    `json:"attempt" example:"2" doc:"Restart attempt number within the current failure window"`
	Delay     string `json:"delay" example:"4s" doc:"Backoff delay before the attempt"`
	Timestamp string `json:"timestamp" doc:"Scheduling timestamp"`
}

// Type returns the event type identifier for RestartScheduledEvent.
func (e RestartScheduledEvent) Type() uint32 { return TypeRestartScheduled }
