// Package gate provides the access serializer: a single exclusive token
// that every driver transaction must hold.
//
// The co-processor's command protocol is not reentrant, so a second
// command issued while one is outstanding corrupts both.  Acquisition
// is always time-bounded except through Forever, which only fault
// recovery uses.
package gate

import (
	"fmt"
	"time"

	sockerr "wifisock/internal/errors"
)

// Forever is an unbounded acquisition wait.
const Forever time.Duration = -1

// Gate is the exclusive-access token.  The zero value is not usable;
// call New.
type Gate struct {
	token chan struct{}
}

// New returns an unheld gate.
func New() *Gate {
	return &Gate{token: make(chan struct{}, 1)}
}

// Acquire takes the token, waiting at most wait (Forever for no bound).
// It reports whether the token was taken.
func (g *Gate) Acquire(wait time.Duration) bool {
	select {
	case g.token <- struct{}{}:
		return true
	default:
	}
	if wait == Forever {
		g.token <- struct{}{}
		return true
	}
	if wait <= 0 {
		return false
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case g.token <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

// Release returns the token.  Releasing an unheld gate panics, as
// unlocking an unlocked sync.Mutex does.
func (g *Gate) Release() {
	select {
	case <-g.token:
	default:
		panic("gate: release of unheld gate")
	}
}

// Do runs fn while holding the token.  If the token cannot be taken
// within wait, fn is not called and an ErrGateTimeout is returned.
func (g *Gate) Do(wait time.Duration, fn func() error) error {
	if !g.Acquire(wait) {
		return fmt.Errorf("after %v: %w", wait, sockerr.ErrGateTimeout)
	}
	defer g.Release()
	return fn()
}
