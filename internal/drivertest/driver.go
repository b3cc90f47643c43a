// Package drivertest provides a scripted wifi.Driver for tests.
//
// Each driver command pops its next result from a per-command FIFO.
// When the FIFO is empty the command succeeds with a sensible default,
// except ReceiveData which waits out its timeout and reports
// wifi.ErrTimeout the way an idle module does.
package drivertest

import (
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"wifisock/wifi"
)

// Call names a driver command.
type Call int

const (
	Resolve Call = iota
	Open
	Close
	Send
	Recv
	Reset
	numCalls
)

func (c Call) String() string {
	switch c {
	case Resolve:
		return "GetHostAddress"
	case Open:
		return "OpenClientConnection"
	case Close:
		return "CloseClientConnection"
	case Send:
		return "SendData"
	case Recv:
		return "ReceiveData"
	case Reset:
		return "ResetModule"
	default:
		return "unknown"
	}
}

// Result scripts one command outcome.
type Result struct {
	N     int           // bytes reported for Send; ignored elsewhere
	Data  []byte        // bytes delivered by Recv
	Addr  netip.Addr    // address returned by Resolve
	Err   error         // error returned
	Delay time.Duration // held before returning
}

// Driver is a scripted, call-counting wifi.Driver.  It records every
// time two commands other than ResetModule overlap.
type Driver struct {
	// DefaultAddr is returned by GetHostAddress when nothing is queued.
	DefaultAddr netip.Addr

	mu      sync.Mutex
	scripts [numCalls]*queue.Queue
	counts  [numCalls]int
	opened  []wifi.Channel
	closed  []wifi.Channel
	sent    []byte

	inFlight atomic.Int32
	overlaps atomic.Int32
}

var _ wifi.Driver = (*Driver)(nil)

// New returns a Driver with empty scripts.
func New() *Driver {
	d := &Driver{DefaultAddr: netip.MustParseAddr("10.0.0.1")}
	for i := range d.scripts {
		d.scripts[i] = queue.New()
	}
	return d
}

// Push queues r as the next outcome of c.
func (d *Driver) Push(c Call, r Result) {
	d.mu.Lock()
	d.scripts[c].Add(r)
	d.mu.Unlock()
}

// Pending reports how many scripted results of c are still queued.
func (d *Driver) Pending(c Call) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scripts[c].Length()
}

// Calls reports how many times c was invoked.
func (d *Driver) Calls(c Call) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[c]
}

// Overlaps reports how many times a command started while another
// command was still running.
func (d *Driver) Overlaps() int { return int(d.overlaps.Load()) }

// Opened returns the channels passed to OpenClientConnection, in order.
func (d *Driver) Opened() []wifi.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wifi.Channel(nil), d.opened...)
}

// Closed returns the channels passed to CloseClientConnection, in order.
func (d *Driver) Closed() []wifi.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]wifi.Channel(nil), d.closed...)
}

// Sent returns every byte accepted by SendData.
func (d *Driver) Sent() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.sent...)
}

func (d *Driver) next(c Call) (Result, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counts[c]++
	q := d.scripts[c]
	if q.Length() == 0 {
		return Result{}, false
	}
	return q.Remove().(Result), true
}

func (d *Driver) enter() {
	if d.inFlight.Add(1) > 1 {
		d.overlaps.Add(1)
	}
}

func (d *Driver) leave() { d.inFlight.Add(-1) }

// ── wifi.Driver ──────────────────────────────────────────────────────

func (d *Driver) GetHostAddress(name string) (netip.Addr, error) {
	d.enter()
	defer d.leave()

	r, ok := d.next(Resolve)
	time.Sleep(r.Delay)
	if !ok {
		if a, err := netip.ParseAddr(name); err == nil {
			return a, nil
		}
		return d.DefaultAddr, nil
	}
	return r.Addr, r.Err
}

func (d *Driver) OpenClientConnection(ch wifi.Channel, _ wifi.Protocol, _ netip.Addr, _ uint16) error {
	d.enter()
	defer d.leave()

	r, _ := d.next(Open)
	time.Sleep(r.Delay)
	if r.Err == nil {
		d.mu.Lock()
		d.opened = append(d.opened, ch)
		d.mu.Unlock()
	}
	return r.Err
}

func (d *Driver) CloseClientConnection(ch wifi.Channel) error {
	d.enter()
	defer d.leave()

	r, _ := d.next(Close)
	time.Sleep(r.Delay)
	d.mu.Lock()
	d.closed = append(d.closed, ch)
	d.mu.Unlock()
	return r.Err
}

func (d *Driver) SendData(_ wifi.Channel, p []byte, _ time.Duration) (int, error) {
	d.enter()
	defer d.leave()

	r, ok := d.next(Send)
	time.Sleep(r.Delay)
	n := len(p)
	if ok {
		n = r.N
	}
	if n > len(p) {
		n = len(p)
	}
	if r.Err == nil {
		d.mu.Lock()
		d.sent = append(d.sent, p[:n]...)
		d.mu.Unlock()
	}
	return n, r.Err
}

func (d *Driver) ReceiveData(_ wifi.Channel, p []byte, timeout time.Duration) (int, error) {
	d.enter()
	defer d.leave()

	r, ok := d.next(Recv)
	if !ok {
		time.Sleep(timeout)
		return 0, wifi.ErrTimeout
	}
	time.Sleep(r.Delay)
	n := copy(p, r.Data)
	return n, r.Err
}

// ResetModule is not counted as an overlap; the module arranges its
// own exclusive access.
func (d *Driver) ResetModule() error {
	r, _ := d.next(Reset)
	time.Sleep(r.Delay)
	return r.Err
}
