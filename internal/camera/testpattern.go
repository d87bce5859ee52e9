package camera

import (
	"context"
	"sync"
	"time"

	"github.com/rmayorov/camstreamer/internal/config"
)

// TestPattern is an in-process source that synthesizes frames at the
// configured rate. Used for development rigs without a camera and in
// tests.
type TestPattern struct {
	cfg    *config.Stream
	ticker *time.Ticker
	seq    uint64
	once   sync.Once
}

// NewTestPattern creates a synthetic frame source.
func NewTestPattern(cfg *config.Stream) *TestPattern {
	return &TestPattern{cfg: cfg}
}

// Open starts the frame clock.
func (s *TestPattern) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	interval := time.Second / time.Duration(s.cfg.Framerate)
	s.ticker = time.NewTicker(interval)
	return nil
}

// Capture waits for the next tick and synthesizes a frame with a
// moving gradient so encoded output is visibly alive.
func (s *TestPattern) Capture(ctx context.Context) (*Frame, error) {
	if s.ticker == nil {
		return nil, &CaptureError{Msg: "source not open"}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ticker.C:
	}

	s.seq++
	data := make([]byte, s.cfg.FrameSize())
	shift := byte(s.seq)
	for i := range data {
		data[i] = byte(i)&0x3f + shift
	}

	return &Frame{
		Data:       data,
		Width:      s.cfg.Width,
		Height:     s.cfg.Height,
		Format:     s.cfg.PixelFormat,
		Seq:        s.seq,
		CapturedAt: time.Now(),
	}, nil
}

// Close stops the frame clock. Idempotent.
func (s *TestPattern) Close() error {
	s.once.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
	})
	return nil
}
