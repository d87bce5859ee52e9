package camera

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rmayorov/camstreamer/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tinyConfig returns a 4x2 rgb24 config (24-byte frames) with the
// capture command replaced by a shell fake.
func tinyConfig(command string) *config.Stream {
	return &config.Stream{
		Width:          4,
		Height:         2,
		Framerate:      30,
		PixelFormat:    config.FormatRGB24,
		CaptureCommand: command,
	}
}

func newTestSource(command string) *RawVideo {
	s := NewRawVideo(tinyConfig(command), testLogger())
	s.captureTimeout = 500 * time.Millisecond
	s.gracefulTimeout = 200 * time.Millisecond
	s.killTimeout = 200 * time.Millisecond
	return s
}

func TestRawVideoCapturesOrderedFrames(t *testing.T) {
	s := newTestSource(`sh -c "while :; do head -c 24 /dev/zero; done"`)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for want := uint64(1); want <= 5; want++ {
		frame, err := s.Capture(context.Background())
		if err != nil {
			t.Fatalf("Capture %d: %v", want, err)
		}
		if frame.Seq != want {
			t.Errorf("frame seq = %d, want %d", frame.Seq, want)
		}
		if len(frame.Data) != 24 {
			t.Errorf("frame size = %d, want 24", len(frame.Data))
		}
	}
}

func TestRawVideoCaptureErrorOnSourceExit(t *testing.T) {
	// Emits exactly one frame, then EOF.
	s := newTestSource(`sh -c "head -c 24 /dev/zero"`)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.Capture(context.Background()); err != nil {
		t.Fatalf("first Capture: %v", err)
	}

	_, err := s.Capture(context.Background())
	var capErr *CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *CaptureError after source exit, got %v", err)
	}
}

func TestRawVideoOpenFailure(t *testing.T) {
	s := newTestSource("/nonexistent/capture/tool")
	err := s.Open(context.Background())
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *DeviceError, got %v", err)
	}

	// Close after failed Open must not panic or error.
	if err := s.Close(); err != nil {
		t.Errorf("Close after failed Open: %v", err)
	}
}

func TestRawVideoCaptureTimeout(t *testing.T) {
	s := newTestSource("sleep 10")
	s.captureTimeout = 100 * time.Millisecond
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	_, err := s.Capture(context.Background())
	var capErr *CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *CaptureError on timeout, got %v", err)
	}
}

func TestRawVideoCaptureInterruptedByCancel(t *testing.T) {
	s := newTestSource("sleep 10")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := s.Capture(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("cancel took too long to interrupt capture: %v", elapsed)
	}
}

func TestRawVideoCloseIsIdempotent(t *testing.T) {
	s := newTestSource(`sh -c "while :; do head -c 24 /dev/zero; done"`)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestRawVideoCaptureBeforeOpen(t *testing.T) {
	s := newTestSource("true")
	if _, err := s.Capture(context.Background()); err == nil {
		t.Fatal("expected error capturing before Open")
	}
}
