package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// EnvPrefix starts every environment variable wifisock reads.
	EnvPrefix = "WIFISOCK_"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout is the SSH gateway connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultRecvTimeout and DefaultSendTimeout match the socket
	// layer's per-socket defaults.
	DefaultRecvTimeout = 10 * time.Second
	DefaultSendTimeout = 10 * time.Second

	// DefaultProbeRecvTimeout is the receive window used when probe
	// mode reads a banner.
	DefaultProbeRecvTimeout = 500 * time.Millisecond

	// DefaultMaxReconnectAttempts is how many times to reopen the socket
	// after a peripheral reset.
	DefaultMaxReconnectAttempts = 10

	// DefaultInitialReconnectDelay is the first backoff step.
	DefaultInitialReconnectDelay = 1 * time.Second

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultBreakerFailures is how many back-to-back peripheral resets
	// open the reconnect circuit breaker.
	DefaultBreakerFailures = 3

	// DefaultBreakerCooldown is how long the breaker stays open.
	DefaultBreakerCooldown = 30 * time.Second
)
