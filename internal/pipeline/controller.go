package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rmayorov/camstreamer/internal/camera"
	"github.com/rmayorov/camstreamer/internal/config"
	"github.com/rmayorov/camstreamer/internal/events"
	"github.com/rmayorov/camstreamer/internal/metrics"
	"github.com/rmayorov/camstreamer/internal/publish"
)

// ErrAlreadyRunning is returned by Start when the pipeline is neither
// idle nor failed.
var ErrAlreadyRunning = errors.New("pipeline: already running")

// ErrRunning is returned by UpdateConfig while the pipeline runs.
// Stream parameters are immutable for the lifetime of a run.
var ErrRunning = errors.New("pipeline: stop before changing config")

// Publisher is what the controller needs from the encode/publish
// stage. *publish.Publisher satisfies it; tests substitute scripted
// fakes.
type Publisher interface {
	Spawn(ctx context.Context) error
	Write(frame *camera.Frame) error
	Done() <-chan struct{}
	ExitErr() error
	CloseInput()
	Close(timeout time.Duration) error
}

// SourceFactory builds a camera source for one run.
type SourceFactory func(cfg *config.Stream) camera.Source

// PublisherFactory builds an encoder publisher for one run.
type PublisherFactory func(cfg *config.Stream) Publisher

// Controller owns the pipeline state machine. All shared state sits
// behind one mutex; the frame loop itself runs in per-run goroutines
// under an errgroup.
type Controller struct {
	logger *slog.Logger
	bus    *events.Bus

	newSource    SourceFactory
	newPublisher PublisherFactory

	queueSize    int
	closeTimeout time.Duration

	mu        sync.Mutex
	cfg       *config.Stream
	state     State
	startedAt time.Time
	frames    uint64
	dropped   uint64
	restarts  uint64
	lastErr   error
	backoff   Backoff
	cancel    context.CancelFunc
	runDone   chan struct{}
}

// New creates a controller in Idle with the default raw-video source
// and ffmpeg publisher.
func New(cfg *config.Stream, bus *events.Bus, logger *slog.Logger) *Controller {
	return &Controller{
		logger: logger,
		bus:    bus,
		newSource: func(cfg *config.Stream) camera.Source {
			return camera.NewRawVideo(cfg, logger.With("module", "camera"))
		},
		newPublisher: func(cfg *config.Stream) Publisher {
			return publish.New(cfg, logger.With("module", "ffmpeg"))
		},
		queueSize:    4,
		closeTimeout: 5 * time.Second,
		cfg:          cfg,
		state:        StateIdle,
		backoff:      DefaultBackoff(),
	}
}

// SetFactories replaces the source and publisher constructors. Used by
// test mode and by tests.
func (c *Controller) SetFactories(src SourceFactory, pub PublisherFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if src != nil {
		c.newSource = src
	}
	if pub != nil {
		c.newPublisher = pub
	}
}

// SetBackoff replaces the retry policy. Only effective before Start.
func (c *Controller) SetBackoff(b Backoff) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backoff = b
}

// Start validates the config and launches the pipeline. Allowed from
// Idle and Failed. Configuration errors abort immediately with no
// resources acquired and no retry; capture and publish failures after
// this point are handled by the retry policy.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle && c.state != StateFailed {
		return fmt.Errorf("%w (state %s)", ErrAlreadyRunning, c.state)
	}

	if err := c.cfg.Validate(); err != nil {
		return err
	}

	// A previous run that exhausted its retry budget leaves its
	// supervisor behind, usually exited but possibly still inside a
	// backoff wait. Cancel it and wait for it to finish before the new
	// run takes over, so a stale goroutine can never touch the new
	// run's state.
	for c.cancel != nil {
		cancel := c.cancel
		done := c.runDone
		c.cancel = nil
		c.mu.Unlock()

		cancel()
		<-done

		c.mu.Lock()
		if c.state != StateIdle && c.state != StateFailed {
			return fmt.Errorf("%w (state %s)", ErrAlreadyRunning, c.state)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.runDone = make(chan struct{})
	c.frames = 0
	c.dropped = 0
	c.restarts = 0
	c.lastErr = nil
	c.backoff.Reset()
	c.setStateLocked(StateStarting, "")

	go c.supervise(ctx, c.cfg, c.runDone)
	return nil
}

// Stop shuts the pipeline down and waits until the camera and the
// encoder subprocess are released. Idempotent; a no-op from Idle.
// Also cancels a pending automatic restart.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.cancel == nil {
		if c.state == StateFailed {
			c.setStateLocked(StateIdle, "")
		}
		done := c.runDone
		c.mu.Unlock()
		// A concurrent Stop may still be waiting the run out; resources
		// are only guaranteed released once that run has finished.
		if done != nil {
			<-done
		}
		return
	}
	cancel := c.cancel
	done := c.runDone
	c.cancel = nil
	if c.state != StateFailed {
		c.setStateLocked(StateStopping, "")
	}
	c.mu.Unlock()

	cancel()
	<-done

	c.mu.Lock()
	c.startedAt = time.Time{}
	c.setStateLocked(StateIdle, "")
	c.mu.Unlock()
}

// UpdateConfig swaps the stream config. The pipeline must be stopped;
// parameters never change mid-run.
func (c *Controller) UpdateConfig(cfg *config.Stream) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle && c.state != StateFailed {
		return ErrRunning
	}
	c.cfg = cfg
	return nil
}

// State returns the current pipeline state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot builds a status view of the pipeline.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:     c.state,
		Streaming: c.state == StateStreaming,
		StartedAt: c.startedAt,
		Width:     c.cfg.Width,
		Height:    c.cfg.Height,
		Framerate: c.cfg.Framerate,
		Bitrate:   c.cfg.Bitrate,
		Frames:    c.frames,
		Dropped:   c.dropped,
		Restarts:  c.restarts,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// supervise runs the pipeline and applies the retry policy across
// failures. Exits when the context is canceled (external stop) or the
// retry budget is exhausted (remains Failed).
func (c *Controller) supervise(ctx context.Context, cfg *config.Stream, done chan struct{}) {
	defer close(done)

	for {
		began := time.Now()
		err := c.runOnce(ctx, cfg)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.backoff.Observe(time.Since(began))
		delay, ok := c.backoff.Next()
		attempt := c.backoff.Attempt()
		c.mu.Unlock()

		if !ok {
			c.logger.Error("Retry budget exhausted, pipeline stays failed until restarted",
				"error", err)
			return
		}

		c.logger.Warn("Pipeline failed, restart scheduled",
			"error", err, "attempt", attempt, "delay", delay)
		c.bus.Publish(events.RestartScheduledEvent{
			Attempt:   attempt,
			Delay:     delay.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		c.mu.Lock()
		c.restarts++
		c.setStateLocked(StateStarting, "")
		c.mu.Unlock()
		metrics.IncRestarts()
	}
}

// runOnce executes a single capture-to-publish run: acquire resources,
// pump frames until something breaks, record the failure, release
// everything. The returned error is the failure cause; on external
// cancellation it is the context error.
func (c *Controller) runOnce(ctx context.Context, cfg *config.Stream) error {
	src := c.sourceFor(cfg)
	if err := src.Open(ctx); err != nil {
		if ctx.Err() == nil {
			c.fail(err)
		}
		_ = src.Close()
		return err
	}

	pub := c.publisherFor(cfg)
	if err := pub.Spawn(ctx); err != nil {
		if ctx.Err() == nil {
			c.fail(err)
		}
		_ = src.Close()
		return err
	}

	err := c.pump(ctx, src, pub)

	if ctx.Err() == nil {
		// Failure state and cause are visible before cleanup starts.
		c.fail(err)
	}

	if cerr := src.Close(); cerr != nil {
		c.logger.Warn("Camera close failed", "error", cerr)
	}
	if cerr := pub.Close(c.closeTimeout); cerr != nil {
		var timeoutErr *publish.ShutdownTimeoutError
		if errors.As(cerr, &timeoutErr) {
			c.logger.Warn("Encoder shutdown exceeded its bound, process was killed",
				"timeout", timeoutErr.Timeout)
		} else {
			c.logger.Warn("Encoder close failed", "error", cerr)
		}
	}

	return err
}

// pump runs the capture and forward workers for one run. A bounded
// channel sits between them; when the encoder falls behind, the
// oldest queued frame is dropped so forwarded frames stay fresh and
// strictly ordered.
func (c *Controller) pump(ctx context.Context, src camera.Source, pub Publisher) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan *camera.Frame, c.queueSize)

	g, gctx := errgroup.WithContext(runCtx)

	// The capture error travels through captureErr rather than the
	// errgroup so the forward worker can drain frames already queued
	// before the run winds down. The channel close publishes it.
	var captureErr error

	g.Go(func() error {
		defer close(frames)
		for {
			frame, err := src.Capture(gctx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				captureErr = err
				return nil
			}
			select {
			case frames <- frame:
			default:
				select {
				case <-frames:
					c.noteDropped()
				default:
				}
				select {
				case frames <- frame:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-pub.Done():
				return &publish.WriteError{Msg: "encoder process exited unexpectedly", Cause: pub.ExitErr()}
			case frame, ok := <-frames:
				if !ok {
					return captureErr
				}
				if err := pub.Write(frame); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					return err
				}
				c.noteForwarded()
			}
		}
	})

	// A blocked pipe write does not observe context cancellation, so
	// closing the encoder input is what bounds stop latency.
	g.Go(func() error {
		<-gctx.Done()
		pub.CloseInput()
		return gctx.Err()
	})

	return g.Wait()
}

func (c *Controller) sourceFor(cfg *config.Stream) camera.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newSource(cfg)
}

func (c *Controller) publisherFor(cfg *config.Stream) Publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.newPublisher(cfg)
}

// noteForwarded counts a delivered frame. The first delivery of a run
// is what flips Starting to Streaming.
func (c *Controller) noteForwarded() {
	c.mu.Lock()
	c.frames++
	if c.state == StateStarting {
		c.startedAt = time.Now()
		c.setStateLocked(StateStreaming, "")
	}
	c.mu.Unlock()
	metrics.IncFrames()
}

func (c *Controller) noteDropped() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
	metrics.IncDroppedFrames()
}

// fail records the failure cause and enters Failed before any cleanup
// runs, so status readers never see a healthy state with dead
// resources behind it.
func (c *Controller) fail(cause error) {
	c.mu.Lock()
	c.lastErr = cause
	c.startedAt = time.Time{}
	c.setStateLocked(StateFailed, cause.Error())
	c.mu.Unlock()
}

// setStateLocked transitions the state machine, updates metrics and
// publishes the change. Caller holds c.mu.
func (c *Controller) setStateLocked(to State, reason string) {
	if c.state == to {
		return
	}
	from := c.state
	c.state = to
	metrics.SetState(string(to), States())
	c.logger.Info("Pipeline state changed", "from", from, "to", to)
	c.bus.Publish(events.StateChangedEvent{
		From:      string(from),
		To:        string(to),
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
