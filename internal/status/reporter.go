package status

import (
	"log/slog"
	"time"

	"github.com/rmayorov/camstreamer/internal/events"
	"github.com/rmayorov/camstreamer/internal/pipeline"
)

// Sink receives status snapshots.
type Sink interface {
	Publish(snap pipeline.Snapshot) error
}

// Source yields the current pipeline snapshot. *pipeline.Controller
// satisfies it.
type Source interface {
	Snapshot() pipeline.Snapshot
}

// Reporter publishes snapshots to its sinks on a fixed interval and
// immediately after every state transition. It only ever reads the
// snapshot, so it can never block the frame loop.
type Reporter struct {
	source   Source
	sinks    []Sink
	interval time.Duration
	logger   *slog.Logger

	kick        chan struct{}
	stop        chan struct{}
	done        chan struct{}
	unsubscribe func()
}

// NewReporter creates a reporter with the default 5 second interval.
func NewReporter(source Source, bus *events.Bus, logger *slog.Logger, sinks ...Sink) *Reporter {
	r := &Reporter{
		source:   source,
		sinks:    sinks,
		interval: 5 * time.Second,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	r.unsubscribe = bus.Subscribe(func(events.StateChangedEvent) {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	})
	return r
}

// SetInterval overrides the reporting interval. Only effective before
// Start.
func (r *Reporter) SetInterval(d time.Duration) {
	r.interval = d
}

// Start begins reporting. An initial snapshot is written right away.
func (r *Reporter) Start() {
	go r.run()
}

// Stop halts reporting after a final snapshot write.
func (r *Reporter) Stop() {
	r.unsubscribe()
	close(r.stop)
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.publish()
	for {
		select {
		case <-ticker.C:
			r.publish()
		case <-r.kick:
			r.publish()
		case <-r.stop:
			r.publish()
			return
		}
	}
}

func (r *Reporter) publish() {
	snap := r.source.Snapshot()
	for _, sink := range r.sinks {
		if err := sink.Publish(snap); err != nil {
			r.logger.Warn("Status publish failed", "error", err)
		}
	}
}
