// Package errors provides the error taxonomy of the socket layer.
//
// Every socket operation reports failure through a *SocketError whose
// Kind is one of the class sentinels below.  Callers classify with
// errors.Is against the sentinel (or with the IsResource helper) and
// can still reach the underlying driver error through Unwrap.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// Resource errors: no free slot, or a handle that does not name an
	// allocated slot.  Returned immediately, never retried.
	ErrNoFreeSocket  = errors.New("no free socket")
	ErrInvalidSocket = errors.New("invalid socket handle")
	ErrSocketClosed  = errors.New("socket closed")

	ErrUnsupportedOption = errors.New("unsupported socket option")

	// ErrTransport covers ordinary driver failures and serializer
	// acquisition timeouts.
	ErrTransport = errors.New("transport error")

	// ErrPeripheralReset means the co-processor faulted and was reset.
	// Every socket, not only the one in the failing call, is gone.
	ErrPeripheralReset = errors.New("peripheral reset")

	ErrGateTimeout = errors.New("driver access timed out")
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ── Structured error types ───────────────────────────────────────────

// SocketError describes a failed socket operation.
type SocketError struct {
	Op     string // "open", "connect", "send", "recv", "setsockopt", ...
	Handle int
	Kind   error // one of the class sentinels
	Err    error // underlying cause, may be nil
}

func (e *SocketError) Error() string {
	s := fmt.Sprintf("%s socket %d: %v", e.Op, e.Handle, e.Kind)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Is matches the class sentinel so errors.Is(err, ErrTransport) works
// without the cause having to be a transport error itself.
func (e *SocketError) Is(target error) bool { return e.Kind == target }

func (e *SocketError) Unwrap() error { return e.Err }

// NetworkError represents a failure in a host network operation made
// on behalf of the co-processor emulator.
type NetworkError struct {
	Op        string // "dial", "resolve", "write", "read"
	Addr      string
	Err       error
	Retryable bool
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string
	Hint    string // optional
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Socket builds a SocketError of the given class.
func Socket(op string, handle int, kind, cause error) *SocketError {
	return &SocketError{Op: op, Handle: handle, Kind: kind, Err: cause}
}

// Wrap creates a NetworkError, detecting retryability from err.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsResource reports whether err is a resource error (no free slot,
// invalid or closed handle).
func IsResource(err error) bool {
	return errors.Is(err, ErrNoFreeSocket) ||
		errors.Is(err, ErrInvalidSocket) ||
		errors.Is(err, ErrSocketClosed)
}

// IsPeripheralReset reports whether err obliges the caller to recreate
// every socket.
func IsPeripheralReset(err error) bool { return errors.Is(err, ErrPeripheralReset) }

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }
