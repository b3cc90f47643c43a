// Package transport provides the uplink of the co-processor emulator:
// how the emulated module reaches the network.  A plain TCP dialer
// models a module on the local network; the SSH dialer models one that
// sits behind a gateway.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound TCP connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
