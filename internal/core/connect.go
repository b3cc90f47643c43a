package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	sockerr "wifisock/internal/errors"
	"wifisock/internal/metrics"
	"wifisock/internal/retry"
	"wifisock/sockets"
	"wifisock/util"
)

// ConnectMode opens one shim socket to Host:Port and relays it to
// stdin/stdout, the default client mode.
//
// A peripheral reset destroys the socket.  With AutoReconnect set the
// mode opens a fresh one under Backoff, and Breaker stops it when the
// module keeps faulting.
type ConnectMode struct {
	Layer  *sockets.Layer
	Closer io.Closer // driver teardown, may be nil
	Host   string
	Port   uint16
	Logger *util.Logger

	AutoReconnect bool
	Backoff       *retry.Backoff
	Breaker       *retry.CircuitBreaker

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Metrics implements Mode.
func (m *ConnectMode) Metrics() *metrics.Collector { return m.Layer.Metrics() }

// Run relays until the peer closes, the context is cancelled, or an
// error that reconnecting cannot fix.  Every socket and the driver are
// released when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	if m.Closer != nil {
		defer m.Closer.Close()
	}
	defer m.Layer.Deinit() //nolint:errcheck

	stdin, stdout := m.stdin(), m.stdout()
	if !m.AutoReconnect {
		return m.relay(ctx, stdin, stdout)
	}

	backoff := m.Backoff
	if backoff == nil {
		backoff = retry.DefaultBackoff()
	}
	b := *backoff
	b.Retryable = reconnectable
	b.OnRetry = func(attempt int, err error, wait time.Duration) {
		m.Logger.Warn("attempt %d: %v; reconnecting in %v", attempt, err, wait.Truncate(time.Millisecond))
	}

	breaker := m.Breaker
	if breaker == nil {
		breaker = retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{IsFailure: reconnectable})
	}

	return b.Do(ctx, func(attempt int) error {
		return breaker.Execute(func() error {
			return m.relay(ctx, stdin, stdout)
		})
	})
}

// reconnectable reports whether a failed relay is worth a fresh socket:
// the module was reset, or the uplink failed in a way the host network
// marks as temporary.
func reconnectable(err error) bool {
	return sockerr.IsPeripheralReset(err) || sockerr.IsRetryable(err)
}

// relay runs one socket's lifetime.
func (m *ConnectMode) relay(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	addr := util.FormatAddr(m.Host, int(m.Port))
	m.Logger.Verbose("connecting to %s", addr)

	conn, err := m.Layer.Dial(m.Host, m.Port)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	m.Logger.Verbose("connected to %s on socket %d", addr, conn.Handle())
	return util.BidirectionalCopy(ctx, conn, stdin, stdout)
}
