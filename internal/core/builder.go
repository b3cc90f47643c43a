package core

import (
	"fmt"
	"time"

	"wifisock/config"
	"wifisock/internal/emulator"
	"wifisock/internal/metrics"
	"wifisock/internal/retry"
	"wifisock/internal/transport"
	"wifisock/sockets"
	"wifisock/util"
)

// Build constructs the appropriate Mode from the given configuration,
// stacked on an emulated co-processor.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if err := util.RequireIP(cfg.Host, cfg.NoDNS); err != nil {
		return nil, err
	}

	mod := buildModule(cfg, logger)
	layer := buildLayer(cfg, mod, logger)

	var (
		mode Mode
		err  error
	)
	if cfg.Probe {
		mode, err = buildProbe(cfg, layer, mod, logger)
	} else {
		mode, err = buildConnect(cfg, layer, mod, logger)
	}
	if err != nil {
		mod.Close() //nolint:errcheck
		return nil, err
	}
	return mode, nil
}

// ── mode builders ────────────────────────────────────────────────────

func buildConnect(cfg *config.Config, layer *sockets.Layer, mod *emulator.Module, logger *util.Logger) (Mode, error) {
	port := cfg.Port
	if port == 0 {
		if ports := cfg.AllPorts(); len(ports) > 0 {
			port = ports[0]
		}
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("destination port %d out of range", port)
	}

	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts == 0 {
		maxAttempts = config.DefaultMaxReconnectAttempts
	}

	return &ConnectMode{
		Layer:         layer,
		Closer:        mod,
		Host:          cfg.Host,
		Port:          uint16(port),
		Logger:        logger,
		AutoReconnect: cfg.AutoReconnect,
		Backoff: &retry.Backoff{
			InitialDelay: config.DefaultInitialReconnectDelay,
			MaxDelay:     config.DefaultMaxReconnectBackoff,
			Multiplier:   2.0,
			MaxAttempts:  maxAttempts,
			Jitter:       true,
		},
		Breaker: retry.NewCircuitBreaker(&retry.CircuitBreakerConfig{
			MaxFailures:  config.DefaultBreakerFailures,
			ResetTimeout: config.DefaultBreakerCooldown,
			IsFailure:    reconnectable,
			OnStateChange: func(from, to retry.State) {
				logger.Verbose("reconnect breaker %s → %s", from, to)
			},
		}),
	}, nil
}

func buildProbe(cfg *config.Config, layer *sockets.Layer, mod *emulator.Module, logger *util.Logger) (Mode, error) {
	ports := cfg.AllPorts()
	if len(ports) == 0 && cfg.Port > 0 {
		ports = []int{cfg.Port}
	}

	var banner time.Duration
	if cfg.Verbose >= 1 {
		banner = config.DefaultProbeRecvTimeout
	}

	return &ProbeMode{
		Layer:         layer,
		Closer:        mod,
		Host:          cfg.Host,
		Ports:         ports,
		Logger:        logger,
		BannerTimeout: banner,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildModule creates the emulated co-processor and its uplink.
func buildModule(cfg *config.Config, logger *util.Logger) *emulator.Module {
	return emulator.New(emulator.Options{
		Dialer:     buildDialer(cfg, logger),
		FaultAfter: cfg.FaultAfter,
		Logger:     logger,
	})
}

// buildLayer stacks the socket layer on the module.
func buildLayer(cfg *config.Config, mod *emulator.Module, logger *util.Logger) *sockets.Layer {
	return sockets.New(mod, sockets.Options{
		RecvTimeout: cfg.RecvTimeout,
		SendTimeout: cfg.SendTimeout,
		Logger:      logger,
		Metrics:     metrics.New(),
	})
}

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&transport.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
		}, logger)
	}
	return &transport.TCPDialer{Timeout: config.DefaultConnTimeout}
}
