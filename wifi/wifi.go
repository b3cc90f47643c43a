// Package wifi defines the contract between the socket layer and a
// command-oriented WiFi co-processor driver.
//
// The driver is not reentrant: the socket layer guarantees that at most
// one Driver method other than ResetModule is in flight at any time.
package wifi

import (
	"errors"
	"net/netip"
	"time"
)

// Hardware limits of the co-processor.
const (
	// MaxPayload is the largest single transfer the module accepts.
	MaxPayload = 1200

	// MaxTimeout is the largest timeout the module accepts for a
	// single command.
	MaxTimeout = 30 * time.Second

	// MinTimeout is the smallest usable timeout.  Zero means "no
	// timeout" to the module, so one tick is the effective minimum.
	MinTimeout = time.Millisecond
)

// Channel identifies one of the module's connection slots.
type Channel uint8

// Protocol selects the transport of a client connection.
type Protocol int

const (
	TCP Protocol = iota
)

func (p Protocol) String() string {
	switch p {
	case TCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// Driver status errors.  Any other non-nil error is an ordinary
// command failure.
var (
	// ErrTimeout reports that the command needed more time than the
	// timeout it was given.  No data was transferred.
	ErrTimeout = errors.New("wifi: command timed out")

	// ErrHardware reports that the module stopped responding or
	// returned garbage.  The module must be reset before further use.
	ErrHardware = errors.New("wifi: module error")

	// ErrConnectionClosed reports that the remote end closed the
	// channel and nothing is left to read.
	ErrConnectionClosed = errors.New("wifi: connection closed by peer")
)

// Driver is the command interface of the co-processor.
type Driver interface {
	// GetHostAddress resolves name with the module's resolver.
	GetHostAddress(name string) (netip.Addr, error)

	// OpenClientConnection connects channel ch to addr:port.
	OpenClientConnection(ch Channel, proto Protocol, addr netip.Addr, port uint16) error

	// CloseClientConnection tears down channel ch.
	CloseClientConnection(ch Channel) error

	// SendData writes p on channel ch and reports how many bytes the
	// module accepted.
	SendData(ch Channel, p []byte, timeout time.Duration) (int, error)

	// ReceiveData reads into p from channel ch, waiting at most
	// timeout.  It returns ErrTimeout, or (0, nil), when nothing
	// arrived in time.
	ReceiveData(ch Channel, p []byte, timeout time.Duration) (int, error)

	// ResetModule power-cycles the module and drops every channel.
	// It arranges its own exclusive access to the device, so callers
	// must not hold their own driver lock while invoking it.
	ResetModule() error
}

// IsHardwareFault reports whether err demands a module reset.
func IsHardwareFault(err error) bool { return errors.Is(err, ErrHardware) }

// IsConnectionClosed reports whether the peer has closed the channel.
func IsConnectionClosed(err error) bool { return errors.Is(err, ErrConnectionClosed) }

// IsTimeout reports whether err is a driver-level timeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }
