// Package cmd wires up the CLI flags and dispatches to the socket layer modes.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"wifisock/config"
	"wifisock/internal/core"
	"wifisock/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X wifisock/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate wifisock mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("wifisock", flag.ContinueOnError)

	// ── destination ──────────────────────────────────────────────
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")
	fs.BoolVarP(&cfg.Probe, "probe", "z", cfg.Probe, "Probe ports instead of relaying")

	// ── socket layer ─────────────────────────────────────────────
	recvMs := fs.Int("recv-timeout", int(cfg.RecvTimeout/time.Millisecond), "Receive timeout in milliseconds")
	sendMs := fs.Int("send-timeout", int(cfg.SendTimeout/time.Millisecond), "Send timeout in milliseconds")

	// ── recovery ─────────────────────────────────────────────────
	fs.BoolVar(&cfg.AutoReconnect, "reconnect", cfg.AutoReconnect, "Reconnect after a module reset")
	fs.IntVar(&cfg.MaxReconnectAttempts, "max-reconnects", cfg.MaxReconnectAttempts, "Maximum reconnect attempts")
	fs.IntVar(&cfg.FaultAfter, "fault-after", cfg.FaultAfter, "Inject a module fault after N commands (testing)")

	// ── SSH uplink ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Route the module uplink via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("wifisock %s\n", version)
		return nil
	}

	cfg.RecvTimeout = time.Duration(*recvMs) * time.Millisecond
	cfg.SendTimeout = time.Duration(*sendMs) * time.Millisecond

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLogger(cfg.Verbose)
	if dryRun {
		logger.Info("configuration ok: %s ports %v", cfg.Host, cfg.AllPorts())
		return nil
	}

	// ── build and run ────────────────────────────────────────────
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	runErr := mode.Run(ctx)

	if cfg.Verbose >= 2 {
		logger.Verbose("stats: %s", mode.Metrics().JSON())
	}
	return runErr
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional fills host and ports from "host port [port …]".
// A host taken from the environment may be omitted.
func parsePositional(cfg *config.Config, remaining []string) error {
	if len(remaining) == 0 {
		if cfg.Host == "" {
			return fmt.Errorf("hostname required (use --help for usage)")
		}
		return nil
	}
	cfg.Host = remaining[0]

	if len(remaining) < 2 {
		if cfg.Port > 0 {
			return nil
		}
		return fmt.Errorf("port required")
	}

	cfg.Ports = cfg.Ports[:0]
	for _, arg := range remaining[1:] {
		pr, err := config.ParsePortSpec(arg)
		if err != nil {
			return fmt.Errorf("port %q: %w", arg, err)
		}
		cfg.Ports = append(cfg.Ports, pr)
	}
	cfg.Port = cfg.Ports[0].Start
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `wifisock – sockets over a WiFi co-processor v%s

Relays stdin/stdout through a socket layer stacked on an emulated
single-threaded WiFi module with four connection channels.

Usage:
  wifisock [options] <host> <port>               Relay
  wifisock -z [options] <host> <ports...>        Probe
  wifisock -T user@gateway <host> <port>         Relay via SSH uplink

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  wifisock 10.0.0.5 7                            Relay to an echo service
  wifisock -vz 10.0.0.5 20-25 80 443             Probe ports, 4 at a time
  wifisock --reconnect --fault-after 50 host 80  Exercise module recovery
  echo "hello" | wifisock host.example.com 9000  Pipe data
`)
}
