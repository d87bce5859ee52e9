package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rmayorov/camstreamer/internal/cmdline"
	"github.com/rmayorov/camstreamer/internal/config"
)

// DefaultCaptureCommand builds the capture invocation used when the
// config does not override it. rpicam-vid writes raw yuv420 frames to
// its stdout at the configured rate.
func DefaultCaptureCommand(cfg *config.Stream) string {
	return fmt.Sprintf(
		"rpicam-vid --nopreview --timeout 0 --codec yuv420 --width %d --height %d --framerate %d -o -",
		cfg.Width, cfg.Height, cfg.Framerate)
}

// RawVideo captures frames from a subprocess that writes fixed-size raw
// frames to its stdout.
type RawVideo struct {
	cfg    *config.Stream
	logger *slog.Logger

	captureTimeout  time.Duration
	gracefulTimeout time.Duration
	killTimeout     time.Duration

	cmd       *exec.Cmd
	cancel    context.CancelFunc
	frames    chan *Frame
	readErr   chan error
	procDone  chan error
	opened    bool
	closeOnce sync.Once
}

// NewRawVideo creates a raw video source for the given stream config.
func NewRawVideo(cfg *config.Stream, logger *slog.Logger) *RawVideo {
	return &RawVideo{
		cfg:             cfg,
		logger:          logger,
		captureTimeout:  5 * time.Second,
		gracefulTimeout: 3 * time.Second,
		killTimeout:     3 * time.Second,
	}
}

// Open spawns the capture subprocess and starts the frame reader.
func (s *RawVideo) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	command := s.cfg.CaptureCommand
	if command == "" {
		command = DefaultCaptureCommand(s.cfg)
	}

	args, err := cmdline.Split(command)
	if err != nil {
		return &DeviceError{Msg: "invalid capture command", Cause: err}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return &DeviceError{Msg: "stdout pipe", Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return &DeviceError{Msg: "stderr pipe", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return &DeviceError{Msg: "start capture process", Cause: err}
	}

	s.cmd = cmd
	s.frames = make(chan *Frame)
	s.readErr = make(chan error, 1)
	s.procDone = make(chan error, 1)
	s.opened = true

	s.logger.Info("Capture process started", "pid", cmd.Process.Pid)

	go s.readFrames(runCtx, stdout)
	go s.streamStderr(stderr)
	go func() { s.procDone <- cmd.Wait() }()

	return nil
}

// readFrames reads fixed-size frames from the pipe and hands them to
// Capture. Single producer; ownership transfers on send.
func (s *RawVideo) readFrames(ctx context.Context, r io.Reader) {
	frameSize := s.cfg.FrameSize()
	var seq uint64

	for {
		buf := make([]byte, frameSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			select {
			case s.readErr <- err:
			default:
			}
			return
		}
		seq++
		frame := &Frame{
			Data:       buf,
			Width:      s.cfg.Width,
			Height:     s.cfg.Height,
			Format:     s.cfg.PixelFormat,
			Seq:        seq,
			CapturedAt: time.Now(),
		}
		select {
		case s.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// streamStderr forwards capture tool diagnostics to the module logger.
func (s *RawVideo) streamStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		s.logger.Debug(scanner.Text())
	}
}

// Capture returns the next frame. It blocks until a frame arrives, the
// context is cancelled, the reader fails, or the capture timeout
// expires.
func (s *RawVideo) Capture(ctx context.Context) (*Frame, error) {
	if !s.opened {
		return nil, &CaptureError{Msg: "source not open"}
	}

	timer := time.NewTimer(s.captureTimeout)
	defer timer.Stop()

	select {
	case frame := <-s.frames:
		return frame, nil
	case err := <-s.readErr:
		return nil, &CaptureError{Msg: "frame read failed", Cause: err}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, &CaptureError{Msg: fmt.Sprintf("no frame within %s", s.captureTimeout)}
	}
}

// Close releases the capture subprocess. Idempotent and safe after a
// failed Open.
func (s *RawVideo) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.cmd == nil || s.cmd.Process == nil {
			return
		}

		if err := s.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.logger.Warn("Failed to signal capture process", "error", err)
		}

		select {
		case <-s.procDone:
		case <-time.After(s.gracefulTimeout):
			s.logger.Warn("Capture process shutdown timeout, forcing kill", "timeout", s.gracefulTimeout)
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				s.logger.Error("Failed to kill capture process", "error", err)
				closeErr = err
				return
			}
			select {
			case <-s.procDone:
			case <-time.After(s.killTimeout):
				s.logger.Error("Capture process did not exit after kill")
			}
		}
	})
	return closeErr
}
