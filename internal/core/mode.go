// Package core is the orchestration layer.  It stacks the socket layer
// on a co-processor driver and runs complete operational modes on top,
// with a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	transport  →  emulator (wifi.Driver)  →  sockets  →  core  →  cmd (CLI)
package core

import (
	"context"

	"wifisock/internal/metrics"
)

// Mode represents a complete operational mode of wifisock (relay or
// probe).  Each mode owns its full lifecycle from socket creation to
// teardown.
type Mode interface {
	Run(ctx context.Context) error

	// Metrics returns the socket layer's counters.
	Metrics() *metrics.Collector
}
