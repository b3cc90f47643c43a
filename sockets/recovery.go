package sockets

import (
	"fmt"

	sockerr "wifisock/internal/errors"
	"wifisock/internal/gate"
)

// recoverModule resets a faulted module and wipes the slot table.  The
// reset runs outside the serializer: the driver arranges its own
// exclusive access for it, and a command stuck on the dead module may
// still hold the token.
//
// Every handle is invalid afterwards, whichever socket tripped the
// fault.
func (l *Layer) recoverModule(op string, i int, cause error) error {
	l.log.Warn("socket %d: %s: module fault, resetting: %v", i, op, cause)
	l.metrics.RecordError(fmt.Sprintf("%s socket %d: %v", op, i, cause))

	if err := l.drv.ResetModule(); err != nil {
		l.log.Error("module reset failed: %v", err)
		return sockerr.Socket(op, i, sockerr.ErrTransport, fmt.Errorf("reset after %v: %w", cause, err))
	}

	l.gate.Acquire(gate.Forever)
	l.table.Reinitialize()
	l.gate.Release()

	l.metrics.PeripheralReset()
	l.metrics.SocketsWiped()
	l.log.Warn("module reset, all sockets closed")
	return sockerr.Socket(op, i, sockerr.ErrPeripheralReset, cause)
}
