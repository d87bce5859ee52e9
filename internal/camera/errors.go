package camera

import "fmt"

// DeviceError reports a failure to acquire or configure the capture
// device. Transient: the controller's retry policy applies.
type DeviceError struct {
	Msg   string
	Cause error
}

func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("camera: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("camera: %s", e.Msg)
}

func (e *DeviceError) Unwrap() error { return e.Cause }

// CaptureError reports a failed or timed-out frame capture on an open
// device. Transient: the controller's retry policy applies.
type CaptureError struct {
	Msg   string
	Cause error
}

func (e *CaptureError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capture: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("capture: %s", e.Msg)
}

func (e *CaptureError) Unwrap() error { return e.Cause }
