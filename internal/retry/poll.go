package retry

import (
	"errors"
	"time"
)

// ErrDeadline is returned by [Poller.Do] when the polling window closes
// before the operation reports completion.
var ErrDeadline = errors.New("poll deadline exceeded")

// Poller repeats an operation at a fixed interval until it completes or
// a wall-clock window elapses.  Unlike [Backoff] the delay never grows:
// the interval is a yield to other goroutines, not a back-off.
type Poller struct {
	// Interval is the sleep between attempts.
	Interval time.Duration
	// Timeout is the polling window measured from the first attempt.
	// The window is checked after each attempt, so at least one
	// attempt always runs.
	Timeout time.Duration

	// Sleep and Now default to time.Sleep and time.Now.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// Do calls fn until it reports done, returns an error, or the window
// closes.  The attempt parameter is 1-based.  A non-nil error from fn
// is returned unchanged.
func (p *Poller) Do(fn func(attempt int) (done bool, err error)) error {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	start := now()
	for attempt := 1; ; attempt++ {
		done, err := fn(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if now().Sub(start) >= p.Timeout {
			return ErrDeadline
		}
		sleep(p.Interval)
	}
}
