// Package emulator implements wifi.Driver on top of host networking so
// the socket layer can be exercised without a co-processor attached.
//
// Each channel owns one uplink connection obtained from a
// transport.Dialer.  A pump goroutine copies inbound bytes into a
// bounded ring buffer that ReceiveData drains, mirroring the module's
// on-chip receive buffer.  Hardware faults can be injected so that
// recovery paths run against a real connection stack.
package emulator

import (
	"context"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/smallnest/ringbuffer"
	"go.uber.org/multierr"

	"wifisock/internal/transport"
	"wifisock/util"
	"wifisock/wifi"
)

// DefaultChannels is the number of channels the module exposes.
const DefaultChannels = 4

// DefaultRxBuffer is the per-channel receive buffer size.
const DefaultRxBuffer = 4 * wifi.MaxPayload

// Options configures a Module.
type Options struct {
	// Dialer opens the uplink connections.  Defaults to a TCP dialer.
	Dialer transport.Dialer

	// Resolver answers GetHostAddress.  Defaults to net.DefaultResolver.
	Resolver *net.Resolver

	// Channels bounds the channel numbers accepted.
	Channels int

	// RxBuffer is the per-channel receive buffer size in bytes.
	RxBuffer int

	// FaultAfter, when positive, makes the module fail every command
	// from the FaultAfter-th one on until it is reset.
	FaultAfter int

	Logger *util.Logger
}

// Module is an emulated co-processor.
type Module struct {
	opts Options
	log  *util.Logger

	mu       sync.Mutex
	chans    map[wifi.Channel]*channel
	commands int
	faulted  bool

	resets   atomic.Int64
	inFlight atomic.Int32
	overlaps atomic.Int32
}

var _ wifi.Driver = (*Module)(nil)

// New returns a Module ready to accept commands.
func New(opts Options) *Module {
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{Timeout: wifi.MaxTimeout}
	}
	if opts.Resolver == nil {
		opts.Resolver = net.DefaultResolver
	}
	if opts.Channels <= 0 {
		opts.Channels = DefaultChannels
	}
	if opts.RxBuffer <= 0 {
		opts.RxBuffer = DefaultRxBuffer
	}
	log := opts.Logger
	if log == nil {
		log = util.NewLogger(0)
	}
	return &Module{
		opts:  opts,
		log:   log,
		chans: make(map[wifi.Channel]*channel),
	}
}

// InjectFault makes every following command fail with wifi.ErrHardware
// until ResetModule is called.
func (m *Module) InjectFault() {
	m.mu.Lock()
	m.faulted = true
	m.mu.Unlock()
}

// Resets reports how many times the module was reset.
func (m *Module) Resets() int64 { return m.resets.Load() }

// Overlaps reports how many commands started while another was still
// running.  A correctly serialized caller keeps this at zero.
func (m *Module) Overlaps() int { return int(m.overlaps.Load()) }

// OpenChannels reports how many channels hold a live uplink.
func (m *Module) OpenChannels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chans)
}

// Close tears down every channel and the dialer.
func (m *Module) Close() error {
	m.mu.Lock()
	err := m.dropAll()
	m.mu.Unlock()
	return multierr.Append(err, m.opts.Dialer.Close())
}

// ── wifi.Driver ──────────────────────────────────────────────────────

func (m *Module) GetHostAddress(name string) (netip.Addr, error) {
	done, err := m.begin()
	if err != nil {
		return netip.Addr{}, err
	}
	defer done()

	if a, err := netip.ParseAddr(name); err == nil {
		if !a.Is4() {
			return netip.Addr{}, errors.Errorf("resolve %s: not an IPv4 address", name)
		}
		return a, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), wifi.MaxTimeout)
	defer cancel()
	addrs, err := m.opts.Resolver.LookupNetIP(ctx, "ip4", name)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, "resolve %s", name)
	}
	for _, a := range addrs {
		if a = a.Unmap(); a.Is4() {
			m.log.Debug("emulator: %s is %s", name, a)
			return a, nil
		}
	}
	return netip.Addr{}, errors.Errorf("resolve %s: no IPv4 address", name)
}

func (m *Module) OpenClientConnection(ch wifi.Channel, proto wifi.Protocol, addr netip.Addr, port uint16) error {
	done, err := m.begin()
	if err != nil {
		return err
	}
	defer done()

	if proto != wifi.TCP {
		return errors.Errorf("channel %d: unsupported protocol %s", ch, proto)
	}
	if int(ch) >= m.opts.Channels {
		return errors.Errorf("channel %d: out of range", ch)
	}
	m.mu.Lock()
	_, busy := m.chans[ch]
	m.mu.Unlock()
	if busy {
		return errors.Errorf("channel %d: already open", ch)
	}

	target := netip.AddrPortFrom(addr, port).String()
	ctx, cancel := context.WithTimeout(context.Background(), wifi.MaxTimeout)
	defer cancel()
	conn, err := m.opts.Dialer.Dial(ctx, "tcp", target)
	if err != nil {
		return errors.Wrapf(err, "channel %d: connect %s", ch, target)
	}

	c := newChannel(conn, m.opts.RxBuffer)
	m.mu.Lock()
	if _, busy := m.chans[ch]; busy {
		m.mu.Unlock()
		c.close() //nolint:errcheck
		return errors.Errorf("channel %d: already open", ch)
	}
	m.chans[ch] = c
	m.mu.Unlock()

	go c.pump()
	m.log.Verbose("emulator: channel %d connected to %s", ch, target)
	return nil
}

func (m *Module) CloseClientConnection(ch wifi.Channel) error {
	done, err := m.begin()
	if err != nil {
		return err
	}
	defer done()

	m.mu.Lock()
	c, ok := m.chans[ch]
	delete(m.chans, ch)
	m.mu.Unlock()
	if !ok {
		return errors.Errorf("channel %d: not open", ch)
	}
	m.log.Verbose("emulator: channel %d closed", ch)
	return errors.Wrapf(c.close(), "channel %d: close", ch)
}

func (m *Module) SendData(ch wifi.Channel, p []byte, timeout time.Duration) (int, error) {
	done, err := m.begin()
	if err != nil {
		return 0, err
	}
	defer done()

	c, err := m.lookup(ch)
	if err != nil {
		return 0, err
	}
	if len(p) > wifi.MaxPayload {
		p = p[:wifi.MaxPayload]
	}
	if timeout > wifi.MaxTimeout {
		timeout = wifi.MaxTimeout
	}
	c.conn.SetWriteDeadline(time.Now().Add(timeout)) //nolint:errcheck
	n, err := c.conn.Write(p)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return n, errors.WithStack(wifi.ErrTimeout)
		}
		return n, errors.Wrapf(err, "channel %d: send", ch)
	}
	return n, nil
}

func (m *Module) ReceiveData(ch wifi.Channel, p []byte, timeout time.Duration) (int, error) {
	done, err := m.begin()
	if err != nil {
		return 0, err
	}
	defer done()

	c, err := m.lookup(ch)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > wifi.MaxPayload {
		p = p[:wifi.MaxPayload]
	}
	return c.receive(p, timeout)
}

// ResetModule drops every channel and clears any fault.  It takes the
// module's own lock and may run while another command is in flight.
func (m *Module) ResetModule() error {
	m.mu.Lock()
	err := m.dropAll()
	m.faulted = false
	m.commands = 0
	m.mu.Unlock()

	m.resets.Add(1)
	if err != nil {
		m.log.Debug("emulator: reset: %v", err)
	}
	m.log.Verbose("emulator: module reset")
	return nil
}

// ── internals ────────────────────────────────────────────────────────

// begin counts one command and fails it if the module is faulted.  The
// returned func ends the command.
func (m *Module) begin() (func(), error) {
	m.mu.Lock()
	m.commands++
	if m.opts.FaultAfter > 0 && m.commands >= m.opts.FaultAfter {
		m.faulted = true
	}
	faulted := m.faulted
	m.mu.Unlock()

	if faulted {
		return nil, errors.WithStack(wifi.ErrHardware)
	}
	if m.inFlight.Add(1) > 1 {
		m.overlaps.Add(1)
	}
	return func() { m.inFlight.Add(-1) }, nil
}

func (m *Module) lookup(ch wifi.Channel) (*channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chans[ch]
	if !ok {
		return nil, errors.Errorf("channel %d: not open", ch)
	}
	return c, nil
}

// dropAll closes every channel.  Caller holds m.mu.
func (m *Module) dropAll() error {
	var err error
	for ch, c := range m.chans {
		err = multierr.Append(err, errors.Wrapf(c.close(), "channel %d", ch))
		delete(m.chans, ch)
	}
	return err
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ── channel ──────────────────────────────────────────────────────────

type channel struct {
	conn net.Conn

	mu     sync.Mutex
	rx     *ringbuffer.RingBuffer
	rxErr  error // set once the uplink stops delivering
	closed bool

	ready chan struct{} // data or rxErr arrived
	space chan struct{} // ring drained
	done  chan struct{}
	once  sync.Once
}

func newChannel(conn net.Conn, size int) *channel {
	return &channel{
		conn:  conn,
		rx:    ringbuffer.New(size),
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func notify(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

// pump copies uplink bytes into the ring, blocking while it is full.
func (c *channel) pump() {
	buf := util.GetBuf()
	defer util.PutBuf(buf)

	for {
		n, err := c.conn.Read(*buf)
		data := (*buf)[:n]
		for len(data) > 0 {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			if free := c.rx.Free(); free > 0 {
				k := len(data)
				if k > free {
					k = free
				}
				w, _ := c.rx.Write(data[:k])
				data = data[w:]
				notify(c.ready)
			}
			c.mu.Unlock()

			if len(data) > 0 {
				select {
				case <-c.space:
				case <-c.done:
					return
				}
			}
		}
		if err != nil {
			c.mu.Lock()
			c.rxErr = err
			c.mu.Unlock()
			notify(c.ready)
			return
		}
	}
}

// receive drains up to len(p) buffered bytes, waiting at most timeout
// for the first one.
func (c *channel) receive(p []byte, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if avail := c.rx.Length(); avail > 0 {
			k := len(p)
			if k > avail {
				k = avail
			}
			n, err := c.rx.Read(p[:k])
			c.mu.Unlock()
			notify(c.space)
			if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
				return n, errors.Wrap(err, "receive")
			}
			return n, nil
		}
		rxErr := c.rxErr
		c.mu.Unlock()

		if rxErr != nil {
			if errors.Is(rxErr, io.EOF) {
				return 0, errors.WithStack(wifi.ErrConnectionClosed)
			}
			return 0, errors.Wrap(rxErr, "receive")
		}

		select {
		case <-c.ready:
		case <-timer.C:
			return 0, errors.WithStack(wifi.ErrTimeout)
		case <-c.done:
			return 0, errors.New("receive: channel closed")
		}
	}
}

func (c *channel) close() error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.rx.Reset()
		c.mu.Unlock()
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
