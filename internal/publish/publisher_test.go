package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rmayorov/camstreamer/internal/camera"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFrame() *camera.Frame {
	return &camera.Frame{Data: []byte("0123456789abcdef"), Width: 4, Height: 4}
}

func newTestPublisher(command string) *Publisher {
	p := NewWithCommand(command, testLogger())
	p.killTimeout = 200 * time.Millisecond
	return p
}

func TestPublisherWriteAndGracefulClose(t *testing.T) {
	p := newTestPublisher(`sh -c "cat >/dev/null"`)
	if err := p.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	for i := 0; i < 10; i++ {
		if err := p.Write(testFrame()); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// cat exits once its stdin closes, well within the timeout.
	if err := p.Close(2 * time.Second); err != nil {
		t.Errorf("Close: %v", err)
	}

	select {
	case <-p.Done():
	default:
		t.Error("process still running after Close")
	}
}

func TestPublisherSpawnFailure(t *testing.T) {
	p := newTestPublisher("/nonexistent/encoder")
	err := p.Spawn(context.Background())
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected *SpawnError, got %v", err)
	}
}

func TestPublisherSpawnInvalidCommand(t *testing.T) {
	p := newTestPublisher(`sh -c "unclosed`)
	var spawnErr *SpawnError
	if err := p.Spawn(context.Background()); !errors.As(err, &spawnErr) {
		t.Fatalf("expected *SpawnError for parse failure, got %v", err)
	}
}

func TestPublisherWriteAfterExit(t *testing.T) {
	p := newTestPublisher(`sh -c "exit 3"`)
	if err := p.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for process exit")
	}

	err := p.Write(testFrame())
	var writeErr *WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("expected *WriteError after exit, got %v", err)
	}
	if p.ExitErr() == nil {
		t.Error("expected non-nil exit error for exit code 3")
	}

	if err := p.Close(time.Second); err != nil {
		t.Errorf("Close after exit: %v", err)
	}
}

func TestPublisherCloseTimeoutKills(t *testing.T) {
	// sleep never reads stdin, so input close alone cannot end it.
	p := newTestPublisher("sleep 10")
	if err := p.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	err := p.Close(100 * time.Millisecond)
	var timeoutErr *ShutdownTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected *ShutdownTimeoutError, got %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("process survived forced kill")
	}
}

func TestPublisherCloseIsIdempotent(t *testing.T) {
	p := newTestPublisher(`sh -c "cat >/dev/null"`)
	if err := p.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := p.Close(time.Second); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := p.Close(time.Second); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPublisherCloseInputUnblocksConsumer(t *testing.T) {
	p := newTestPublisher(`sh -c "cat >/dev/null"`)
	if err := p.Spawn(context.Background()); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer p.Close(time.Second)

	p.CloseInput()
	p.CloseInput() // idempotent

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("encoder did not exit after input close")
	}
}
