// Package camera provides frame sources for the publishing pipeline: a
// subprocess-backed capture device and a synthetic test pattern.
package camera

import (
	"context"
	"time"

	"github.com/rmayorov/camstreamer/internal/config"
)

// Frame is a single raw video frame. Ownership transfers from the
// source to the consumer on every Capture call; a frame is never
// retained past the loop iteration that produced it.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Format     config.PixelFormat
	Seq        uint64
	CapturedAt time.Time
}

// Source produces a sequence of raw frames from a capture device.
//
// Open is called at most once per run. Capture blocks until a frame is
// available, the context is cancelled, or an internal timeout expires;
// it must never be called concurrently. Close releases the device
// unconditionally and is safe to call multiple times, including after
// a failed Open.
type Source interface {
	Open(ctx context.Context) error
	Capture(ctx context.Context) (*Frame, error)
	Close() error
}
