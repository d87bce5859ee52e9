package publish

import (
	"fmt"
	"time"
)

// SpawnError reports a failure to start the encoder subprocess.
// Transient: the controller's retry policy applies.
type SpawnError struct {
	Msg   string
	Cause error
}

func (e *SpawnError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("publish: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("publish: %s", e.Msg)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// WriteError reports a failed frame write: the input pipe is closed or
// broken, or the subprocess has exited. Transient: the controller's
// retry policy applies.
type WriteError struct {
	Msg   string
	Cause error
}

func (e *WriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("publish write: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("publish write: %s", e.Msg)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// ShutdownTimeoutError reports that the encoder did not exit within the
// close timeout and was forcibly terminated. Logged by the caller,
// never propagated into the retry policy.
type ShutdownTimeoutError struct {
	Timeout time.Duration
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("publish: encoder did not exit within %s, killed", e.Timeout)
}
