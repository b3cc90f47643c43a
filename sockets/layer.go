package sockets

import (
	"fmt"
	"net/netip"
	"runtime"
	"time"

	sockerr "wifisock/internal/errors"
	"wifisock/internal/slots"
	"wifisock/wifi"
)

// Init frees every slot.  Calling it again is harmless.
func (l *Layer) Init() error {
	l.table.Reinitialize()
	l.metrics.SocketsWiped()
	l.log.Debug("sockets: initialized %d slots", l.table.Cap())
	return nil
}

// Deinit disconnects every open socket and frees the table.
func (l *Layer) Deinit() error {
	for _, i := range l.table.InUse() {
		l.Disconnect(Handle(i))
	}
	l.table.Reinitialize()
	l.metrics.SocketsWiped()
	l.log.Debug("sockets: deinitialized")
	return nil
}

// Open claims a free slot.  It returns InvalidHandle and an
// ErrNoFreeSocket error when the table is full.
func (l *Layer) Open() (Handle, error) {
	i := l.table.Allocate(l.defaults)
	if i < 0 {
		l.metrics.RecordError("open: no free socket")
		return InvalidHandle, sockerr.Socket("open", int(InvalidHandle), sockerr.ErrNoFreeSocket, nil)
	}
	l.metrics.SocketOpened()
	l.log.Debug("socket %d: opened", i)
	return Handle(i), nil
}

// Close releases h.  It behaves as Disconnect and always returns nil.
func (l *Layer) Close(h Handle) error {
	l.Disconnect(h)
	return nil
}

// Disconnect marks h closed, tears down its driver connection on a
// best-effort basis and frees the slot.  Unknown handles are ignored.
func (l *Layer) Disconnect(h Handle) { l.disconnect(int(h), anyGen) }

func (l *Layer) disconnect(i int, gen uint64) {
	if !l.owns(i, gen) {
		return
	}
	l.table.SetFlags(i, slots.Closed)

	err := l.gate.Do(l.gateWait, func() error {
		return l.drv.CloseClientConnection(wifi.Channel(i))
	})
	if err != nil {
		l.log.Debug("socket %d: close: %v", i, err)
	}

	l.table.Free(i)
	l.metrics.SocketClosed()
	l.log.Debug("socket %d: freed", i)
}

// Connect resolves host with the module and opens a TCP connection on
// h's channel.  A failed resolve leaves the slot allocated.
func (l *Layer) Connect(h Handle, host string, port uint16) error {
	i := int(h)
	if !l.table.Valid(i) {
		return sockerr.Socket("connect", i, sockerr.ErrInvalidSocket, nil)
	}

	var addr netip.Addr
	err := l.gate.Do(l.gateWait, func() error {
		var err error
		addr, err = l.drv.GetHostAddress(host)
		return err
	})
	if err != nil {
		return l.transportError("connect", i, fmt.Errorf("resolve %s: %w", host, err))
	}

	err = l.gate.Do(l.gateWait, func() error {
		return l.drv.OpenClientConnection(wifi.Channel(i), wifi.TCP, addr, port)
	})
	if err != nil {
		return l.transportError("connect", i, fmt.Errorf("%s:%d: %w", addr, port, err))
	}

	l.table.SetFlags(i, slots.FlagConnected)
	l.metrics.Connected()
	l.log.Verbose("socket %d: connected to %s (%s) port %d", i, host, addr, port)
	return nil
}

// SetOption stores a timeout option on h.  Options other than the two
// timeouts are rejected with ErrUnsupportedOption.
func (l *Layer) SetOption(h Handle, opt Option, value time.Duration) error {
	return l.setOption(int(h), anyGen, opt, value)
}

func (l *Layer) setOption(i int, gen uint64, opt Option, value time.Duration) error {
	if !l.owns(i, gen) {
		return sockerr.Socket("setsockopt", i, sockerr.ErrInvalidSocket, nil)
	}
	switch opt {
	case OptRecvTimeout:
		l.table.SetRecvTimeout(i, value)
	case OptSendTimeout:
		l.table.SetSendTimeout(i, value)
	default:
		return sockerr.Socket("setsockopt", i, sockerr.ErrUnsupportedOption, fmt.Errorf("%s", opt))
	}
	l.log.Debug("socket %d: %s = %v", i, opt, value)
	return nil
}

// Send writes p on h and returns how many bytes the module accepted.
// The layer never retries a partial send.
func (l *Layer) Send(h Handle, p []byte) (int, error) {
	return l.send(int(h), anyGen, p)
}

func (l *Layer) send(i int, gen uint64, p []byte) (int, error) {
	if !l.owns(i, gen) {
		return 0, sockerr.Socket("send", i, sockerr.ErrInvalidSocket, nil)
	}
	if l.table.Flags(i).Has(slots.FlagWriteClosed) {
		return 0, sockerr.Socket("send", i, sockerr.ErrSocketClosed, nil)
	}

	timeout, _ := l.table.Timeouts(i)
	timeout = clampTimeout(timeout)

	// Yield once on the way out, after any recovery has given the
	// serializer back.
	defer runtime.Gosched()

	var n int
	err := l.gate.Do(l.gateWait, func() error {
		var err error
		n, err = l.drv.SendData(wifi.Channel(i), p, timeout)
		return err
	})

	if err != nil {
		if wifi.IsHardwareFault(err) {
			return 0, l.recoverModule("send", i, err)
		}
		return 0, l.transportError("send", i, err)
	}
	l.metrics.BytesSent(int64(n))
	return n, nil
}

// anyGen makes owns accept whichever claim currently holds the slot.
const anyGen uint64 = 0

// owns reports whether slot i is allocated, and with gen != anyGen
// whether it is still the claim gen was recorded from.
func (l *Layer) owns(i int, gen uint64) bool {
	if gen == anyGen {
		return l.table.Valid(i)
	}
	return l.table.Owned(i, gen)
}

// transportError records err and wraps it as a transport failure.
func (l *Layer) transportError(op string, i int, err error) error {
	if sockerr.Is(err, sockerr.ErrGateTimeout) {
		l.metrics.GateTimeout()
	}
	l.metrics.RecordError(fmt.Sprintf("%s socket %d: %v", op, i, err))
	l.log.Verbose("socket %d: %s: %v", i, op, err)
	return sockerr.Socket(op, i, sockerr.ErrTransport, err)
}

func clampTimeout(d time.Duration) time.Duration {
	if d < wifi.MinTimeout {
		return wifi.MinTimeout
	}
	if d > wifi.MaxTimeout {
		return wifi.MaxTimeout
	}
	return d
}
