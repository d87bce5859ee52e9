package pipeline

import "time"

// Backoff computes restart delays after pipeline failures: doubling
// from Initial, capped at Max, with at most MaxAttempts attempts. A
// run that survives HealthyAfter resets the attempt counter, so a
// stream that fails once a day never exhausts its budget.
type Backoff struct {
	Initial      time.Duration
	Max          time.Duration
	MaxAttempts  int
	HealthyAfter time.Duration

	attempt int
}

// DefaultBackoff returns the retry policy used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:      time.Second,
		Max:          30 * time.Second,
		MaxAttempts:  5,
		HealthyAfter: time.Minute,
	}
}

// Next consumes one attempt and returns the delay before it. The
// second return is false once the budget is exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= b.MaxAttempts {
		return 0, false
	}
	delay := b.Initial << b.attempt
	if delay > b.Max || delay <= 0 {
		delay = b.Max
	}
	b.attempt++
	return delay, true
}

// Attempt returns the number of attempts consumed since the last
// reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Observe records how long the last run lived before failing. Runs
// that lasted at least HealthyAfter reset the attempt counter.
func (b *Backoff) Observe(runtime time.Duration) {
	if runtime >= b.HealthyAfter {
		b.attempt = 0
	}
}

// Reset clears the attempt counter. Called on every external start.
func (b *Backoff) Reset() {
	b.attempt = 0
}
