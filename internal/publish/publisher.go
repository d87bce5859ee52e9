package publish

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rmayorov/camstreamer/internal/camera"
	"github.com/rmayorov/camstreamer/internal/cmdline"
	"github.com/rmayorov/camstreamer/internal/config"
)

// Publisher owns the encoder subprocess. The controller writes frames
// to it and observes only spawn success, per-write success, and exit.
type Publisher struct {
	command     string
	logger      *slog.Logger
	killTimeout time.Duration

	cmd   *exec.Cmd
	stdin io.WriteCloser

	done    chan struct{}
	exitErr error
	exitMu  sync.Mutex

	inputOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// New creates a publisher for the given stream config.
func New(cfg *config.Stream, logger *slog.Logger) *Publisher {
	return NewWithCommand(BuildCommand(FromConfig(cfg)), logger)
}

// NewWithCommand creates a publisher running an explicit command.
// The subprocess must read raw frames from stdin.
func NewWithCommand(command string, logger *slog.Logger) *Publisher {
	return &Publisher{
		command:     command,
		logger:      logger,
		killTimeout: 3 * time.Second,
	}
}

// Spawn starts the encoder subprocess with a stdin frame pipe.
func (p *Publisher) Spawn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args, err := cmdline.Split(p.command)
	if err != nil {
		return &SpawnError{Msg: "invalid encoder command", Cause: err}
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Msg: "stdin pipe", Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &SpawnError{Msg: "stderr pipe", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return &SpawnError{Msg: "start encoder process", Cause: err}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.done = make(chan struct{})

	p.logger.Info("Encoder process started", "pid", cmd.Process.Pid)

	go p.streamStderr(stderr)
	go func() {
		err := cmd.Wait()
		p.exitMu.Lock()
		p.exitErr = err
		p.exitMu.Unlock()
		close(p.done)
	}()

	return nil
}

// Write forwards one raw frame to the encoder. Fails when the process
// has exited or the pipe is closed or broken.
func (p *Publisher) Write(frame *camera.Frame) error {
	select {
	case <-p.done:
		return &WriteError{Msg: "encoder process exited", Cause: p.ExitErr()}
	default:
	}

	if _, err := p.stdin.Write(frame.Data); err != nil {
		return &WriteError{Msg: "pipe write failed", Cause: err}
	}
	return nil
}

// Done is closed when the encoder subprocess exits for any reason.
func (p *Publisher) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the subprocess exit error, nil before exit or on a
// clean exit.
func (p *Publisher) ExitErr() error {
	p.exitMu.Lock()
	defer p.exitMu.Unlock()
	return p.exitErr
}

// CloseInput closes the frame pipe, unblocking any in-progress Write
// and letting the encoder flush and exit. Idempotent.
func (p *Publisher) CloseInput() {
	p.inputOnce.Do(func() {
		if p.stdin != nil {
			_ = p.stdin.Close()
		}
	})
}

// Close closes the input pipe, waits up to timeout for a graceful
// exit, and kills the process if it does not exit in time. It runs on
// every pipeline exit path; after Close returns no subprocess remains.
func (p *Publisher) Close(timeout time.Duration) error {
	p.closeOnce.Do(func() {
		if p.cmd == nil || p.cmd.Process == nil {
			return
		}

		p.CloseInput()

		select {
		case <-p.done:
			return
		case <-time.After(timeout):
		}

		p.logger.Warn("Encoder did not exit after input close, forcing kill", "timeout", timeout)
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill encoder process", "error", err)
		}

		select {
		case <-p.done:
		case <-time.After(p.killTimeout):
			p.logger.Error("Encoder process did not exit after kill")
		}
		p.closeErr = &ShutdownTimeoutError{Timeout: timeout}
	})
	return p.closeErr
}

// streamStderr forwards encoder output through the ffmpeg level parser
// into the module logger.
func (p *Publisher) streamStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		level, msg := ParseLogLevel(scanner.Text())
		switch level {
		case "fatal", "panic", "error":
			p.logger.Error(msg)
		case "warning":
			p.logger.Warn(msg)
		case "verbose", "debug", "trace":
			p.logger.Debug(msg)
		default:
			p.logger.Info(msg)
		}
	}
}
