package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"wifisock/internal/metrics"
	"wifisock/sockets"
	"wifisock/util"
)

// ProbeResult records whether a single port accepted a connection.
type ProbeResult struct {
	Port   int
	Open   bool
	Banner string
	Err    error
}

// ProbeMode connects to each port of a host through the socket layer
// and reports which accept, the equivalent of a zero-I/O port scan.
type ProbeMode struct {
	Layer  *sockets.Layer
	Closer io.Closer // driver teardown, may be nil
	Host   string
	Ports  []int
	Logger *util.Logger

	// BannerTimeout, when positive, reads the first line the service
	// sends after connecting.
	BannerTimeout time.Duration
}

// Metrics implements Mode.
func (m *ProbeMode) Metrics() *metrics.Collector { return m.Layer.Metrics() }

// Run probes all configured ports and logs the results.
func (m *ProbeMode) Run(ctx context.Context) error {
	if m.Closer != nil {
		defer m.Closer.Close()
	}
	defer m.Layer.Deinit() //nolint:errcheck

	if len(m.Ports) == 0 {
		return fmt.Errorf("no ports specified for probing")
	}

	m.Logger.Verbose("probing %s - %d port(s)", m.Host, len(m.Ports))
	results := ProbePorts(ctx, m.Layer, m.Host, m.Ports, m.BannerTimeout)

	open := 0
	for _, r := range results {
		switch {
		case r.Open && r.Banner != "":
			open++
			m.Logger.Info("%s %d/tcp open - %s", m.Host, r.Port, r.Banner)
		case r.Open:
			open++
			m.Logger.Info("%s %d/tcp open", m.Host, r.Port)
		default:
			m.Logger.Verbose("%s %d/tcp closed - %v", m.Host, r.Port, r.Err)
		}
	}

	if open == 0 {
		m.Logger.Info("no open ports found on %s", m.Host)
	}
	return ctx.Err()
}

// ProbePorts probes every port, never holding more sockets than the
// layer has slots, and returns results in input order.
func ProbePorts(ctx context.Context, l *sockets.Layer, host string, ports []int, bannerTimeout time.Duration) []ProbeResult {
	results := make([]ProbeResult, len(ports))
	sem := make(chan struct{}, l.Capacity())
	var wg sync.WaitGroup

	for i, port := range ports {
		wg.Add(1)
		go func(idx, p int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[idx] = ProbeResult{Port: p, Err: err}
				return
			}
			results[idx] = probeOne(l, host, p, bannerTimeout)
		}(i, port)
	}

	wg.Wait()
	return results
}

func probeOne(l *sockets.Layer, host string, port int, bannerTimeout time.Duration) ProbeResult {
	conn, err := l.Dial(host, uint16(port))
	if err != nil {
		return ProbeResult{Port: port, Err: err}
	}
	defer conn.Close()

	res := ProbeResult{Port: port, Open: true}
	if bannerTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(bannerTimeout)) //nolint:errcheck
		line, _ := bufio.NewReaderSize(conn, 64).ReadString('\n')
		res.Banner = strings.TrimSpace(line)
	}
	return res
}
