package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersIncrement(t *testing.T) {
	frames := testutil.ToFloat64(framesTotal)
	dropped := testutil.ToFloat64(droppedFramesTotal)
	restarts := testutil.ToFloat64(restartsTotal)

	IncFrames()
	IncDroppedFrames()
	IncRestarts()

	if got := testutil.ToFloat64(framesTotal); got != frames+1 {
		t.Errorf("frames_total = %v, want %v", got, frames+1)
	}
	if got := testutil.ToFloat64(droppedFramesTotal); got != dropped+1 {
		t.Errorf("dropped_frames_total = %v, want %v", got, dropped+1)
	}
	if got := testutil.ToFloat64(restartsTotal); got != restarts+1 {
		t.Errorf("restarts_total = %v, want %v", got, restarts+1)
	}
}

func TestSetStateIsOneHot(t *testing.T) {
	states := []string{"idle", "starting", "streaming", "stopping", "failed"}

	SetState("streaming", states)
	for _, s := range states {
		want := 0.0
		if s == "streaming" {
			want = 1
		}
		if got := testutil.ToFloat64(pipelineState.WithLabelValues(s)); got != want {
			t.Errorf("state gauge %q = %v, want %v", s, got, want)
		}
	}
	if got := testutil.ToFloat64(pipelineUp); got != 1 {
		t.Errorf("up = %v, want 1 while streaming", got)
	}

	SetState("failed", states)
	if got := testutil.ToFloat64(pipelineState.WithLabelValues("streaming")); got != 0 {
		t.Errorf("streaming gauge = %v after failure, want 0", got)
	}
	if got := testutil.ToFloat64(pipelineUp); got != 0 {
		t.Errorf("up = %v, want 0 when failed", got)
	}
}
