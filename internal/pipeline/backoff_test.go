package pipeline

import (
	"testing"
	"time"
)

func TestBackoffDelaysDoubleAndCap(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 5 * time.Second, MaxAttempts: 5}

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}
	var prev time.Duration
	for i, w := range want {
		delay, ok := b.Next()
		if !ok {
			t.Fatalf("attempt %d: budget exhausted early", i+1)
		}
		if delay != w {
			t.Errorf("attempt %d: delay = %v, want %v", i+1, delay, w)
		}
		if delay < prev {
			t.Errorf("attempt %d: delay %v decreased from %v", i+1, delay, prev)
		}
		prev = delay
	}

	if _, ok := b.Next(); ok {
		t.Error("expected budget exhausted after max attempts")
	}
}

func TestBackoffHealthyRunResetsAttempts(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: time.Minute, MaxAttempts: 2, HealthyAfter: 10 * time.Second}

	b.Next()
	b.Next()
	if _, ok := b.Next(); ok {
		t.Fatal("budget should be exhausted")
	}

	b.Observe(5 * time.Second)
	if _, ok := b.Next(); ok {
		t.Error("short run must not reset the budget")
	}

	b.Observe(10 * time.Second)
	delay, ok := b.Next()
	if !ok {
		t.Fatal("healthy run should reset the budget")
	}
	if delay != time.Second {
		t.Errorf("delay after reset = %v, want %v", delay, time.Second)
	}
}

func TestBackoffZeroAttemptsNeverRetries(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: time.Minute}
	if _, ok := b.Next(); ok {
		t.Error("zero max attempts must not allow a retry")
	}
}
