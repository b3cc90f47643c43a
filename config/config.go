// Package config defines the runtime configuration for wifisock and
// provides helpers for parsing tunnel specifications and port ranges.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	sockerr "wifisock/internal/errors"
	"wifisock/util"
)

// Config holds every tuneable for a single wifisock session.
type Config struct {
	// ── Destination ──────────────────────────────────────────────────
	Host  string
	Port  int         // primary destination port
	Ports []PortRange // all destination port specs (probing)
	Probe bool        // -z: probe ports instead of relaying
	NoDNS bool

	// ── Socket layer ─────────────────────────────────────────────────
	RecvTimeout time.Duration
	SendTimeout time.Duration

	// ── Recovery ─────────────────────────────────────────────────────
	AutoReconnect        bool
	MaxReconnectAttempts int
	FaultAfter           int // emulator: fault after N module commands

	// ── SSH uplink ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// Default returns a Config carrying the values of defaults.go.
func Default() *Config {
	return &Config{
		RecvTimeout:          DefaultRecvTimeout,
		SendTimeout:          DefaultSendTimeout,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		TunnelPort:           DefaultSSHPort,
	}
}

// ── Port helpers ─────────────────────────────────────────────────────

// PortRange is an inclusive start–end pair.
type PortRange struct {
	Start int
	End   int
}

// Expand returns every port in the range.
func (pr PortRange) Expand() []int {
	out := make([]int, 0, pr.End-pr.Start+1)
	for p := pr.Start; p <= pr.End; p++ {
		out = append(out, p)
	}
	return out
}

// AllPorts flattens every PortRange into a single slice.
func (c *Config) AllPorts() []int {
	var out []int
	for _, pr := range c.Ports {
		out = append(out, pr.Expand()...)
	}
	return out
}

// ParsePortSpec accepts "80" or "80-90".
func ParsePortSpec(spec string) (PortRange, error) {
	if strings.Contains(spec, "-") {
		parts := strings.SplitN(spec, "-", 2)
		start, err := strconv.Atoi(parts[0])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range start %q", parts[0])
		}
		end, err := strconv.Atoi(parts[1])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range end %q", parts[1])
		}
		if start < 1 || end > 65535 || start > end {
			return PortRange{}, fmt.Errorf("invalid port range %d-%d", start, end)
		}
		return PortRange{Start: start, End: end}, nil
	}

	port, err := strconv.Atoi(spec)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return PortRange{}, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return PortRange{Start: port, End: port}, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "pi@gateway.lan:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &sockerr.ConfigError{
			Field:   "host",
			Message: "hostname is required",
			Hint:    "usage: wifisock [options] <host> <port>",
		}
	}
	if c.Port == 0 && len(c.Ports) == 0 {
		return &sockerr.ConfigError{
			Field:   "port",
			Message: "destination port is required",
			Hint:    "usage: wifisock [options] <host> <port>",
		}
	}
	if !c.Probe && len(c.AllPorts()) > 1 {
		return &sockerr.ConfigError{
			Field:   "port",
			Message: "more than one port given",
			Hint:    "use -z to probe several ports",
		}
	}
	if err := util.RequireIP(c.Host, c.NoDNS); err != nil {
		return &sockerr.ConfigError{Field: "host", Value: c.Host, Message: err.Error()}
	}

	if c.RecvTimeout < 0 {
		return &sockerr.ConfigError{Field: "recv-timeout", Value: c.RecvTimeout, Message: "must not be negative"}
	}
	if c.SendTimeout < 0 {
		return &sockerr.ConfigError{Field: "send-timeout", Value: c.SendTimeout, Message: "must not be negative"}
	}
	if c.MaxReconnectAttempts < 0 {
		return &sockerr.ConfigError{Field: "max-reconnects", Value: c.MaxReconnectAttempts, Message: "must not be negative"}
	}
	if c.FaultAfter < 0 {
		return &sockerr.ConfigError{Field: "fault-after", Value: c.FaultAfter, Message: "must not be negative"}
	}

	if c.Probe && c.AutoReconnect {
		return &sockerr.ConfigError{
			Field:   "reconnect",
			Message: "cannot be combined with -z",
			Hint:    "probe mode opens a fresh socket per port already",
		}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &sockerr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: "tunnel host is required",
			Hint:    "expected [user@]host[:port]",
		}
	}
	return nil
}
