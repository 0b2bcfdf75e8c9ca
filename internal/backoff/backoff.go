// Package backoff tracks consecutive corrective-action failures and gates
// retries behind a cool-down once a failure threshold is reached.
package backoff

import "time"

// DefaultThreshold is the number of consecutive failures that arms the cool-down.
const DefaultThreshold = 3

// DefaultCooldown is the default cool-down duration.
const DefaultCooldown = 5 * time.Minute

// Clock abstracts time operations for testing.
type Clock interface {
	Now() time.Time
}

// systemClock uses the actual system time.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Tracker counts consecutive failures of a corrective action and suspends
// further attempts for a cool-down once the threshold is reached. It never
// sleeps: the owning poll loop keeps polling and logging during the
// cool-down and consults Eligible before acting.
//
// Tracker is not safe for concurrent use. Each monitor owns one and calls
// it from its single poll goroutine.
type Tracker struct {
	threshold int
	cooldown  time.Duration
	clock     Clock

	failures int
	until    time.Time
}

// NewTracker creates a Tracker with the given threshold and cool-down.
// Non-positive values fall back to the defaults.
func NewTracker(threshold int, cooldown time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Tracker{
		threshold: threshold,
		cooldown:  cooldown,
		clock:     systemClock{},
	}
}

// SetClock sets a custom clock implementation for testing.
func (t *Tracker) SetClock(c Clock) {
	t.clock = c
}

// Failure records one failed corrective attempt. It returns true when this
// failure arms (or re-arms) the cool-down — the moment to alert. Once the
// count is at or past the threshold, every further failure re-arms the
// cool-down, so at most one attempt is made per cool-down period.
func (t *Tracker) Failure() bool {
	t.failures++
	if t.failures >= t.threshold {
		t.until = t.clock.Now().Add(t.cooldown)
		return true
	}
	return false
}

// Reset clears the failure count and any active cool-down. Any success —
// including drift that resolved on its own — resets the tracker completely.
func (t *Tracker) Reset() {
	t.failures = 0
	t.until = time.Time{}
}

// Eligible reports whether a corrective attempt is currently permitted.
func (t *Tracker) Eligible() bool {
	return !t.clock.Now().Before(t.until)
}

// Failures returns the current consecutive-failure count.
func (t *Tracker) Failures() int {
	return t.failures
}

// Remaining returns the time left in the active cool-down, or zero when no
// cool-down is in effect.
func (t *Tracker) Remaining() time.Duration {
	rem := t.until.Sub(t.clock.Now())
	if rem < 0 {
		return 0
	}
	return rem
}
