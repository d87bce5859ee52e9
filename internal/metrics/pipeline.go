// Package metrics provides Prometheus metrics for the streaming pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camstreamer",
		Subsystem: "pipeline",
		Name:      "frames_total",
		Help:      "Frames delivered to the encoder",
	})

	droppedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camstreamer",
		Subsystem: "pipeline",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped because the encoder fell behind",
	})

	restartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camstreamer",
		Subsystem: "pipeline",
		Name:      "restarts_total",
		Help:      "Pipeline restarts after transient failures",
	})

	pipelineState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camstreamer",
		Subsystem: "pipeline",
		Name:      "state",
		Help:      "Current pipeline state (one-hot across state labels)",
	}, []string{"state"})

	pipelineUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camstreamer",
		Subsystem: "pipeline",
		Name:      "up",
		Help:      "1 while the pipeline is actively streaming",
	})
)

// IncFrames counts a frame handed to the encoder.
func IncFrames() {
	framesTotal.Inc()
}

// IncDroppedFrames counts a frame discarded under backpressure.
func IncDroppedFrames() {
	droppedFramesTotal.Inc()
}

// IncRestarts counts a restart attempt after a transient failure.
func IncRestarts() {
	restartsTotal.Inc()
}

// SetState flips the one-hot state gauge and the up gauge.
func SetState(state string, states []string) {
	for _, s := range states {
		v := 0.0
		if s == state {
			v = 1
		}
		pipelineState.WithLabelValues(s).Set(v)
	}
	if state == "streaming" {
		pipelineUp.Set(1)
	} else {
		pipelineUp.Set(0)
	}
}
