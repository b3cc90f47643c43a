package sockets

import (
	"errors"

	sockerr "wifisock/internal/errors"
	"wifisock/internal/retry"
	"wifisock/internal/slots"
	"wifisock/wifi"
)

// errGateBusy ends the receive poll when the serializer could not be
// taken within the receive window.
var errGateBusy = errors.New("serializer busy for the whole receive window")

// Recv reads into p from h.  The module only waits wifi.MinTimeout per
// receive command, so Recv polls it until data arrives or the socket's
// receive timeout elapses, releasing the serializer between polls so
// other sockets keep moving.
//
// A receive that times out returns (0, nil).
func (l *Layer) Recv(h Handle, p []byte) (int, error) {
	return l.recv(int(h), anyGen, p)
}

func (l *Layer) recv(i int, gen uint64, p []byte) (int, error) {
	if !l.owns(i, gen) {
		return 0, sockerr.Socket("recv", i, sockerr.ErrInvalidSocket, nil)
	}
	if l.table.Flags(i).Has(slots.FlagReadClosed) {
		return 0, sockerr.Socket("recv", i, sockerr.ErrSocketClosed, nil)
	}
	if len(p) > wifi.MaxPayload {
		p = p[:wifi.MaxPayload]
	}

	_, timeout := l.table.Timeouts(i)
	if timeout < 0 {
		timeout = 0
	}
	wait := timeout + AcquireSlack
	ch := wifi.Channel(i)

	var n int
	poller := retry.Poller{Interval: l.pollInterval, Timeout: timeout}
	err := poller.Do(func(attempt int) (bool, error) {
		if attempt > 1 && (!l.owns(i, gen) || l.table.Flags(i).Has(slots.FlagReadClosed)) {
			return false, sockerr.Socket("recv", i, sockerr.ErrSocketClosed, nil)
		}
		if !l.gate.Acquire(wait) {
			return false, errGateBusy
		}
		k, err := l.drv.ReceiveData(ch, p, wifi.MinTimeout)
		l.gate.Release()

		switch {
		case err == nil && k > 0:
			n = k
			return true, nil
		case err == nil, wifi.IsTimeout(err):
			return false, nil
		default:
			return false, err
		}
	})

	switch {
	case err == nil:
		l.metrics.BytesReceived(int64(n))
		return n, nil
	case errors.Is(err, retry.ErrDeadline):
		l.metrics.SoftTimeout()
		return 0, nil
	case errors.Is(err, errGateBusy):
		l.metrics.GateTimeout()
		l.metrics.SoftTimeout()
		l.log.Debug("socket %d: recv: %v", i, err)
		return 0, nil
	case sockerr.IsResource(err):
		return 0, err
	case wifi.IsHardwareFault(err):
		return 0, l.recoverModule("recv", i, err)
	default:
		return 0, l.transportError("recv", i, err)
	}
}
