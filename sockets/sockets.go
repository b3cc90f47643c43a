// Package sockets is the socket layer that sits between a generic
// sockets API and a non-reentrant WiFi co-processor driver.
//
// A Layer owns a fixed table of socket slots, serializes every driver
// command through a single token, emulates long receive timeouts on a
// module that only honours very short ones, and resets the module when
// it faults.  After a reset every handle is invalid: callers that see
// ErrPeripheralReset must reopen all of their sockets.
package sockets

import (
	"time"

	"wifisock/internal/gate"
	"wifisock/internal/metrics"
	"wifisock/internal/slots"
	"wifisock/util"
	"wifisock/wifi"
)

// ── Constants ────────────────────────────────────────────────────────

const (
	// Capacity is the number of sockets the module can hold open.
	Capacity = 4

	DefaultSendTimeout = 10 * time.Second
	DefaultRecvTimeout = 10 * time.Second

	// GateWait bounds ordinary serializer acquisitions.
	GateWait = 60 * time.Second

	// PollInterval is the sleep between receive polls.
	PollInterval = 5 * time.Millisecond

	// AcquireSlack is added to the receive timeout when Recv waits for
	// the serializer.
	AcquireSlack = 5 * time.Millisecond
)

// Handle identifies an open socket.
type Handle int

// InvalidHandle is returned when no socket could be allocated.
const InvalidHandle Handle = -1

// Option names a socket option accepted by SetOption.
type Option int

const (
	OptRecvTimeout Option = iota + 1
	OptSendTimeout
	OptKeepAlive // accepted by the API, not supported by the module
)

func (o Option) String() string {
	switch o {
	case OptRecvTimeout:
		return "SO_RCVTIMEO"
	case OptSendTimeout:
		return "SO_SNDTIMEO"
	case OptKeepAlive:
		return "SO_KEEPALIVE"
	default:
		return "unknown"
	}
}

// Options tunes a Layer.  Zero values take the package defaults.
type Options struct {
	Capacity     int
	SendTimeout  time.Duration
	RecvTimeout  time.Duration
	GateWait     time.Duration
	PollInterval time.Duration

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Layer is one socket layer bound to one driver.
type Layer struct {
	drv     wifi.Driver
	table   *slots.Table
	gate    *gate.Gate
	log     *util.Logger
	metrics *metrics.Collector

	defaults     slots.Defaults
	gateWait     time.Duration
	pollInterval time.Duration
}

// New returns an initialized Layer with every slot free.
func New(drv wifi.Driver, opts Options) *Layer {
	if opts.Capacity <= 0 {
		opts.Capacity = Capacity
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.RecvTimeout <= 0 {
		opts.RecvTimeout = DefaultRecvTimeout
	}
	if opts.GateWait <= 0 {
		opts.GateWait = GateWait
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = PollInterval
	}
	log := opts.Logger
	if log == nil {
		log = util.NewLogger(0)
	}

	return &Layer{
		drv:     drv,
		table:   slots.New(opts.Capacity),
		gate:    gate.New(),
		log:     log,
		metrics: opts.Metrics,
		defaults: slots.Defaults{
			Flags:       slots.FlagSecure,
			SendTimeout: opts.SendTimeout,
			RecvTimeout: opts.RecvTimeout,
		},
		gateWait:     opts.GateWait,
		pollInterval: opts.PollInterval,
	}
}

// Capacity returns the number of slots.
func (l *Layer) Capacity() int { return l.table.Cap() }

// Valid reports whether h names an open socket.
func (l *Layer) Valid(h Handle) bool { return l.table.Valid(int(h)) }

// Metrics returns the collector the layer reports to (may be nil).
func (l *Layer) Metrics() *metrics.Collector { return l.metrics }

// Stats returns a snapshot of the layer's metrics.
func (l *Layer) Stats() metrics.Snapshot { return l.metrics.Snapshot() }
