// Package slots implements the fixed-capacity socket slot table.
//
// A slot's index is both the caller-visible handle and the driver
// channel.  All metadata is guarded by one short-held mutex that is
// never held across a driver call.
package slots

import (
	"sync"
	"time"
)

// Flags is the per-slot status bitset.
type Flags uint32

const (
	FlagSecure Flags = 1 << iota
	FlagReadClosed
	FlagWriteClosed
	FlagConnected
)

// Closed is both closed flags together.
const Closed = FlagReadClosed | FlagWriteClosed

func (f Flags) Has(x Flags) bool { return f&x == x }

// Defaults are applied to a slot when it is claimed.
type Defaults struct {
	Flags       Flags
	SendTimeout time.Duration
	RecvTimeout time.Duration
}

type slot struct {
	inUse       bool
	gen         uint64
	flags       Flags
	sendTimeout time.Duration
	recvTimeout time.Duration
}

// Table is a fixed pool of socket slots.
type Table struct {
	mu    sync.Mutex
	slots []slot
	next  uint64 // last generation handed out
}

// New returns a table of the given capacity with every slot free.
func New(capacity int) *Table {
	t := &Table{slots: make([]slot, capacity)}
	t.Reinitialize()
	return t
}

// Cap returns the table's capacity.
func (t *Table) Cap() int { return len(t.slots) }

// Allocate claims the first free slot and applies d to it.  It returns
// -1 when every slot is in use.
//
// The lock is taken per candidate, not for the whole scan, so unrelated
// allocations are not serialized end to end.  Claiming is still a single
// check-then-set under the lock, so two allocators never win the same
// slot.
func (t *Table) Allocate(d Defaults) int {
	for i := range t.slots {
		t.mu.Lock()
		if !t.slots[i].inUse {
			t.next++
			t.slots[i] = slot{
				inUse:       true,
				gen:         t.next,
				flags:       d.Flags,
				sendTimeout: d.SendTimeout,
				recvTimeout: d.RecvTimeout,
			}
			t.mu.Unlock()
			return i
		}
		t.mu.Unlock()
	}
	return -1
}

// Free returns slot i to the pool.  Out-of-range indexes are ignored.
func (t *Table) Free(i int) {
	if !t.inRange(i) {
		return
	}
	t.mu.Lock()
	t.slots[i].inUse = false
	t.mu.Unlock()
}

// Valid reports whether i names an allocated slot.
func (t *Table) Valid(i int) bool {
	if !t.inRange(i) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[i].inUse
}

// Generation returns the generation slot i was last claimed with, or 0
// when it is free.  Generations are never reused, so a holder that
// recorded one can tell its own claim from a later one on the same
// index.
func (t *Table) Generation(i int) uint64 {
	if !t.inRange(i) {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.slots[i].inUse {
		return 0
	}
	return t.slots[i].gen
}

// Owned reports whether slot i is allocated under generation gen.
func (t *Table) Owned(i int, gen uint64) bool {
	if !t.inRange(i) {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[i].inUse && t.slots[i].gen == gen
}

// Reinitialize marks every slot free and closed.
func (t *Table) Reinitialize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i] = slot{flags: Closed}
	}
}

// InUse lists the allocated slot indexes in ascending order.
func (t *Table) InUse() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for i := range t.slots {
		if t.slots[i].inUse {
			out = append(out, i)
		}
	}
	return out
}

// ── Per-slot accessors ───────────────────────────────────────────────
//
// These do not check the in-use flag; callers validate first.

// Flags returns slot i's status flags.
func (t *Table) Flags(i int) Flags {
	if !t.inRange(i) {
		return Closed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[i].flags
}

// SetFlags ORs f into slot i's status flags.
func (t *Table) SetFlags(i int, f Flags) {
	if !t.inRange(i) {
		return
	}
	t.mu.Lock()
	t.slots[i].flags |= f
	t.mu.Unlock()
}

// Timeouts returns slot i's send and receive timeouts.
func (t *Table) Timeouts(i int) (send, recv time.Duration) {
	if !t.inRange(i) {
		return 0, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots[i].sendTimeout, t.slots[i].recvTimeout
}

// SetSendTimeout stores d verbatim.
func (t *Table) SetSendTimeout(i int, d time.Duration) {
	if !t.inRange(i) {
		return
	}
	t.mu.Lock()
	t.slots[i].sendTimeout = d
	t.mu.Unlock()
}

// SetRecvTimeout stores d verbatim.
func (t *Table) SetRecvTimeout(i int, d time.Duration) {
	if !t.inRange(i) {
		return
	}
	t.mu.Lock()
	t.slots[i].recvTimeout = d
	t.mu.Unlock()
}

func (t *Table) inRange(i int) bool { return i >= 0 && i < len(t.slots) }
