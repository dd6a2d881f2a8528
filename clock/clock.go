// Package clock abstracts time operations for testability. Production code
// injects Real(); tests inject NewFake() with deterministic time control.
//
// Every function in this module that would call time.Now, time.NewTicker or
// time.Sleep accepts a Clock (or is a method on a struct with a Clock field)
// instead of calling the time package directly. This keeps TTL expiry and
// sweep behavior testable without real sleeps.
package clock

import "time"

// Clock provides the current time and periodic tick sources.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers ticks on its C channel
	// at the specified interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the current goroutine for at least duration d. The
	// fake clock returns immediately (retry backoff in tests should
	// not wall-block).
	Sleep(d time.Duration)
}

// Ticker wraps a periodic timer. Read ticks from C. Call Stop when the
// Ticker is no longer needed.
//
// The C channel has capacity 1, matching time.Ticker. If the consumer
// falls behind, ticks are dropped rather than queued.
type Ticker struct {
	// C delivers ticks. Buffered with capacity 1.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. No more ticks will be sent on C after Stop
// returns. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }
