// Package clock abstracts the timers the sync controller and transport
// depend on, so tests can drive debounce and backoff deterministically.
package clock

import "time"

// Clock is the subset of the time package the rest of the module uses.
// Production code injects Real(); tests inject Fake().
type Clock interface {
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer cancels
	// the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a cancellable scheduled call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. It reports false if the timer
// already fired or was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
