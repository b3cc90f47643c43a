package sockets

import (
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"wifisock/wifi"
)

// Addr is the net.Addr of a shim socket.
type Addr struct {
	Host string
	Port uint16
}

func (a Addr) Network() string { return "tcp" }
func (a Addr) String() string  { return net.JoinHostPort(a.Host, fmt.Sprint(a.Port)) }

// Conn adapts one shim socket to net.Conn so that crypto/tls and
// ordinary io code can run over the co-processor.
//
// Read keeps polling through soft timeouts until data arrives, the peer
// closes (io.EOF) or the read deadline passes (os.ErrDeadlineExceeded).
// Write splits p into module-sized chunks.
//
// A Conn is bound to the slot claim it was dialled on.  Once that claim
// ends, by Close or by a module reset, the Conn never touches the slot
// again, even after a later Open reuses the index.
type Conn struct {
	l      *Layer
	h      Handle
	gen    uint64
	local  Addr
	remote Addr

	baseRecv time.Duration
	baseSend time.Duration

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time

	closed atomic.Bool
}

var _ net.Conn = (*Conn)(nil)

// Dial opens a socket and connects it to host:port.
func (l *Layer) Dial(host string, port uint16) (*Conn, error) {
	h, err := l.Open()
	if err != nil {
		return nil, err
	}
	if err := l.Connect(h, host, port); err != nil {
		l.Close(h) //nolint:errcheck
		return nil, err
	}

	send, recv := l.table.Timeouts(int(h))
	return &Conn{
		l:        l,
		h:        h,
		gen:      l.table.Generation(int(h)),
		local:    Addr{Host: fmt.Sprintf("wifi%d", h)},
		remote:   Addr{Host: host, Port: port},
		baseRecv: recv,
		baseSend: send,
	}, nil
}

// Handle returns the underlying socket handle.
func (c *Conn) Handle() Handle { return c.h }

func (c *Conn) Read(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	for {
		c.mu.Lock()
		dl := c.readDeadline
		c.mu.Unlock()

		timeout, err := window(dl, c.baseRecv)
		if err != nil {
			return 0, err
		}
		if err := c.l.setOption(int(c.h), c.gen, OptRecvTimeout, timeout); err != nil {
			return 0, c.mapErr(err)
		}

		n, err := c.l.recv(int(c.h), c.gen, p)
		if err != nil {
			return 0, c.mapErr(err)
		}
		if n > 0 {
			return n, nil
		}
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.closed.Load() {
		return 0, net.ErrClosed
	}

	var total int
	for total < len(p) {
		c.mu.Lock()
		dl := c.writeDeadline
		c.mu.Unlock()

		timeout, err := window(dl, c.baseSend)
		if err != nil {
			return total, err
		}
		if err := c.l.setOption(int(c.h), c.gen, OptSendTimeout, timeout); err != nil {
			return total, c.mapErr(err)
		}

		chunk := p[total:]
		if len(chunk) > wifi.MaxPayload {
			chunk = chunk[:wifi.MaxPayload]
		}
		n, err := c.l.send(int(c.h), c.gen, chunk)
		total += n
		if err != nil {
			return total, c.mapErr(err)
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

// Close disconnects the socket.  Closing twice returns net.ErrClosed.
// A Conn whose slot was wiped by a module reset has nothing left to
// disconnect.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return net.ErrClosed
	}
	c.l.disconnect(int(c.h), c.gen)
	return nil
}

func (c *Conn) LocalAddr() net.Addr  { return c.local }
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

func (c *Conn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadline, c.writeDeadline = t, t
	c.mu.Unlock()
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	c.readDeadline = t
	c.mu.Unlock()
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.writeDeadline = t
	c.mu.Unlock()
	return nil
}

// mapErr translates layer errors into the ones net.Conn users expect.
func (c *Conn) mapErr(err error) error {
	switch {
	case c.closed.Load():
		return net.ErrClosed
	case wifi.IsConnectionClosed(err):
		return io.EOF
	default:
		return err
	}
}

// window returns the per-call timeout: base, shortened to what is left
// before deadline.
func window(deadline time.Time, base time.Duration) (time.Duration, error) {
	if deadline.IsZero() {
		return base, nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, os.ErrDeadlineExceeded
	}
	if left < base {
		return left, nil
	}
	return base, nil
}
