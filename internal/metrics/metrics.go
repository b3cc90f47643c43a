// Package metrics provides lightweight, lock-free counters for the
// socket layer.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics of one socket layer.
type Collector struct {
	socketsActive    atomic.Int64
	socketsTotal     atomic.Int64
	connects         atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	softTimeouts     atomic.Int64
	gateTimeouts     atomic.Int64
	peripheralResets atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastReset    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Socket metrics ───────────────────────────────────────────────────

// SocketOpened increments both the active and total counters.
func (c *Collector) SocketOpened() {
	if c == nil {
		return
	}
	c.socketsActive.Add(1)
	c.socketsTotal.Add(1)
}

// SocketClosed decrements the active socket counter.
func (c *Collector) SocketClosed() {
	if c == nil {
		return
	}
	c.socketsActive.Add(-1)
}

// SocketsWiped drops the active counter to zero after the slot table
// has been reinitialized.
func (c *Collector) SocketsWiped() {
	if c == nil {
		return
	}
	c.socketsActive.Store(0)
}

// Connected records a successful driver connection.
func (c *Collector) Connected() {
	if c == nil {
		return
	}
	c.connects.Add(1)
}

// ActiveSockets returns the number of allocated slots.
func (c *Collector) ActiveSockets() int64 {
	if c == nil {
		return 0
	}
	return c.socketsActive.Load()
}

// TotalSockets returns the lifetime open count.
func (c *Collector) TotalSockets() int64 {
	if c == nil {
		return 0
	}
	return c.socketsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the module.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes accepted by the module.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// SoftTimeout records a receive that returned zero bytes.
func (c *Collector) SoftTimeout() {
	if c == nil {
		return
	}
	c.softTimeouts.Add(1)
}

// SoftTimeouts returns the soft timeout count.
func (c *Collector) SoftTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.softTimeouts.Load()
}

// GateTimeout records a failed serializer acquisition.
func (c *Collector) GateTimeout() {
	if c == nil {
		return
	}
	c.gateTimeouts.Add(1)
}

// GateTimeouts returns the serializer timeout count.
func (c *Collector) GateTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.gateTimeouts.Load()
}

// ── Fault metrics ────────────────────────────────────────────────────

// PeripheralReset records a completed module reset.
func (c *Collector) PeripheralReset() {
	if c == nil {
		return
	}
	c.peripheralResets.Add(1)
	c.mu.Lock()
	c.lastReset = time.Now()
	c.mu.Unlock()
}

// PeripheralResets returns the module reset count.
func (c *Collector) PeripheralResets() int64 {
	if c == nil {
		return 0
	}
	return c.peripheralResets.Load()
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SocketsActive    int64  `json:"sockets_active"`
	SocketsTotal     int64  `json:"sockets_total"`
	Connects         int64  `json:"connects"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	SoftTimeouts     int64  `json:"soft_timeouts"`
	GateTimeouts     int64  `json:"gate_timeouts"`
	PeripheralResets int64  `json:"peripheral_resets"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastReset        string `json:"last_reset,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		SocketsActive:    c.socketsActive.Load(),
		SocketsTotal:     c.socketsTotal.Load(),
		Connects:         c.connects.Load(),
		BytesIn:          c.bytesIn.Load(),
		BytesOut:         c.bytesOut.Load(),
		SoftTimeouts:     c.softTimeouts.Load(),
		GateTimeouts:     c.gateTimeouts.Load(),
		PeripheralResets: c.peripheralResets.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	if !c.lastReset.IsZero() {
		s.LastReset = c.lastReset.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
