package sockets

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wifisock/internal/drivertest"
	sockerr "wifisock/internal/errors"
	"wifisock/internal/metrics"
	"wifisock/internal/slots"
	"wifisock/wifi"
)

func newLayer(t *testing.T) (*Layer, *drivertest.Driver) {
	t.Helper()
	drv := drivertest.New()
	l := New(drv, Options{Metrics: metrics.New()})
	return l, drv
}

func mustOpen(t *testing.T, l *Layer) Handle {
	t.Helper()
	h, err := l.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return h
}

// ── Slot lifecycle ───────────────────────────────────────────────────

func TestLayer_OpenUntilFull(t *testing.T) {
	l, _ := newLayer(t)

	seen := map[Handle]bool{}
	for i := 0; i < Capacity; i++ {
		h := mustOpen(t, l)
		if h < 0 || int(h) >= Capacity {
			t.Fatalf("handle %d out of range", h)
		}
		if seen[h] {
			t.Fatalf("handle %d returned twice", h)
		}
		seen[h] = true
	}

	h, err := l.Open()
	if h != InvalidHandle {
		t.Errorf("handle = %d, want InvalidHandle", h)
	}
	if !errors.Is(err, sockerr.ErrNoFreeSocket) {
		t.Errorf("err = %v, want ErrNoFreeSocket", err)
	}
	if got := l.Stats().SocketsActive; got != Capacity {
		t.Errorf("SocketsActive = %d, want %d", got, Capacity)
	}
}

func TestLayer_OpenAppliesDefaults(t *testing.T) {
	l, _ := newLayer(t)
	h := mustOpen(t, l)

	f := l.table.Flags(int(h))
	if !f.Has(slots.FlagSecure) || f.Has(slots.FlagConnected) || f.Has(slots.FlagReadClosed) {
		t.Errorf("flags = %b, want only secure", f)
	}
	send, recv := l.table.Timeouts(int(h))
	if send != DefaultSendTimeout || recv != DefaultRecvTimeout {
		t.Errorf("timeouts = %v/%v, want %v/%v", send, recv, DefaultSendTimeout, DefaultRecvTimeout)
	}
}

func TestLayer_Validity(t *testing.T) {
	l, drv := newLayer(t)

	h := mustOpen(t, l)
	if !l.Valid(h) {
		t.Fatal("opened handle is not valid")
	}
	if err := l.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.Valid(h) {
		t.Fatal("closed handle still valid")
	}

	h = mustOpen(t, l)
	l.Disconnect(h)
	if l.Valid(h) {
		t.Fatal("disconnected handle still valid")
	}
	if got := drv.Closed(); len(got) != 2 {
		t.Errorf("driver closes = %v, want 2", got)
	}
}

func TestLayer_CloseIsIdempotent(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)

	for i := 0; i < 3; i++ {
		if err := l.Close(h); err != nil {
			t.Fatalf("Close #%d: %v", i+1, err)
		}
		l.Disconnect(h)
	}
	for _, bad := range []Handle{InvalidHandle, Capacity, 1000, 2} {
		if err := l.Close(bad); err != nil {
			t.Errorf("Close(%d) = %v, want nil", bad, err)
		}
		l.Disconnect(bad)
	}
	if drv.Calls(drivertest.Close) != 1 {
		t.Errorf("driver closes = %d, want 1", drv.Calls(drivertest.Close))
	}
}

func TestLayer_CloseIgnoresDriverFailure(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)
	drv.Push(drivertest.Close, drivertest.Result{Err: errors.New("not connected")})

	if err := l.Close(h); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if l.Valid(h) {
		t.Error("slot not freed after failed driver close")
	}
}

func TestLayer_InitDeinit(t *testing.T) {
	l, drv := newLayer(t)

	a := mustOpen(t, l)
	b := mustOpen(t, l)
	if err := l.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if l.Valid(a) || l.Valid(b) {
		t.Error("handles valid after Deinit")
	}
	if drv.Calls(drivertest.Close) != 2 {
		t.Errorf("driver closes = %d, want 2", drv.Calls(drivertest.Close))
	}
	if err := l.Deinit(); err != nil {
		t.Fatalf("second Deinit: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := l.Init(); err != nil {
			t.Fatalf("Init: %v", err)
		}
	}
	for i := 0; i < Capacity; i++ {
		mustOpen(t, l)
	}
}

// ── Options ──────────────────────────────────────────────────────────

func TestLayer_SetOption(t *testing.T) {
	l, _ := newLayer(t)
	h := mustOpen(t, l)

	if err := l.SetOption(h, OptRecvTimeout, 200*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := l.SetOption(h, OptSendTimeout, 3*time.Second); err != nil {
		t.Fatal(err)
	}
	send, recv := l.table.Timeouts(int(h))
	if send != 3*time.Second || recv != 200*time.Millisecond {
		t.Fatalf("timeouts = %v/%v", send, recv)
	}

	err := l.SetOption(h, OptKeepAlive, time.Second)
	if !errors.Is(err, sockerr.ErrUnsupportedOption) {
		t.Fatalf("err = %v, want ErrUnsupportedOption", err)
	}
	if err := l.SetOption(h, Option(42), time.Second); !errors.Is(err, sockerr.ErrUnsupportedOption) {
		t.Fatalf("err = %v, want ErrUnsupportedOption", err)
	}
	send2, recv2 := l.table.Timeouts(int(h))
	if send2 != send || recv2 != recv {
		t.Error("unsupported option changed the timeouts")
	}
}

func TestLayer_SetOptionInvalidHandle(t *testing.T) {
	l, _ := newLayer(t)

	h := mustOpen(t, l)
	l.Close(h) //nolint:errcheck

	for _, bad := range []Handle{h, InvalidHandle, Capacity} {
		err := l.SetOption(bad, OptRecvTimeout, time.Second)
		if !sockerr.IsResource(err) {
			t.Errorf("SetOption(%d) = %v, want resource error", bad, err)
		}
	}
}

// ── Connect ──────────────────────────────────────────────────────────

func TestLayer_Connect(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)

	if err := l.Connect(h, "example.com", 443); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !l.table.Flags(int(h)).Has(slots.FlagConnected) {
		t.Error("connected flag not set")
	}
	if got := drv.Opened(); len(got) != 1 || got[0] != wifi.Channel(h) {
		t.Errorf("driver opened %v, want channel %d", got, h)
	}
	if l.Stats().Connects != 1 {
		t.Errorf("Connects = %d, want 1", l.Stats().Connects)
	}
}

func TestLayer_ConnectInvalidHandle(t *testing.T) {
	l, drv := newLayer(t)

	err := l.Connect(3, "example.com", 80)
	if !errors.Is(err, sockerr.ErrInvalidSocket) {
		t.Fatalf("err = %v, want ErrInvalidSocket", err)
	}
	if drv.Calls(drivertest.Resolve) != 0 {
		t.Error("driver called for an invalid handle")
	}
}

func TestLayer_ConnectUnresolvable(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)
	nxdomain := errors.New("no such host")
	drv.Push(drivertest.Resolve, drivertest.Result{Err: nxdomain})

	err := l.Connect(h, "nowhere.invalid", 80)
	if !errors.Is(err, sockerr.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if !errors.Is(err, nxdomain) {
		t.Errorf("err = %v, should wrap the driver cause", err)
	}
	if !l.Valid(h) {
		t.Error("slot freed after failed resolve")
	}
	if drv.Calls(drivertest.Open) != 0 {
		t.Error("connection attempted after failed resolve")
	}
}

func TestLayer_ConnectRefused(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)
	drv.Push(drivertest.Open, drivertest.Result{Err: errors.New("refused")})

	err := l.Connect(h, "10.0.0.9", 80)
	if !errors.Is(err, sockerr.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if l.table.Flags(int(h)).Has(slots.FlagConnected) {
		t.Error("connected flag set after failure")
	}
}

// ── Send ─────────────────────────────────────────────────────────────

func TestLayer_Send(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)

	n, err := l.Send(h, []byte("GET / HTTP/1.0\r\n\r\n"))
	if err != nil || n != 18 {
		t.Fatalf("Send = (%d, %v)", n, err)
	}
	if string(drv.Sent()) != "GET / HTTP/1.0\r\n\r\n" {
		t.Errorf("driver got %q", drv.Sent())
	}
	if l.Stats().BytesOut != 18 {
		t.Errorf("BytesOut = %d, want 18", l.Stats().BytesOut)
	}
}

func TestLayer_SendPartialIsNotRetried(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)
	drv.Push(drivertest.Send, drivertest.Result{N: 4})

	n, err := l.Send(h, []byte("abcdefgh"))
	if err != nil || n != 4 {
		t.Fatalf("Send = (%d, %v), want (4, nil)", n, err)
	}
	if drv.Calls(drivertest.Send) != 1 {
		t.Errorf("driver sends = %d, want 1", drv.Calls(drivertest.Send))
	}
}

func TestLayer_SendErrors(t *testing.T) {
	l, drv := newLayer(t)

	if _, err := l.Send(InvalidHandle, []byte("x")); !errors.Is(err, sockerr.ErrInvalidSocket) {
		t.Errorf("invalid handle: err = %v", err)
	}

	h := mustOpen(t, l)
	boom := errors.New("busy")
	drv.Push(drivertest.Send, drivertest.Result{Err: boom})
	_, err := l.Send(h, []byte("x"))
	if !errors.Is(err, sockerr.ErrTransport) || !errors.Is(err, boom) {
		t.Errorf("driver failure: err = %v", err)
	}
	if !l.Valid(h) {
		t.Error("ordinary failure invalidated the handle")
	}
}

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, wifi.MinTimeout},
		{time.Microsecond, wifi.MinTimeout},
		{10 * time.Second, 10 * time.Second},
		{wifi.MaxTimeout, wifi.MaxTimeout},
		{time.Hour, wifi.MaxTimeout},
	}
	for _, tt := range tests {
		if got := clampTimeout(tt.in); got != tt.want {
			t.Errorf("clampTimeout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// ── Fault recovery ───────────────────────────────────────────────────

func TestLayer_SendFaultResetsEverything(t *testing.T) {
	l, drv := newLayer(t)
	a := mustOpen(t, l)
	b := mustOpen(t, l)
	c := mustOpen(t, l)
	drv.Push(drivertest.Send, drivertest.Result{Err: wifi.ErrHardware})

	_, err := l.Send(b, []byte("x"))
	if !errors.Is(err, sockerr.ErrPeripheralReset) {
		t.Fatalf("err = %v, want ErrPeripheralReset", err)
	}
	if !sockerr.IsPeripheralReset(err) {
		t.Error("IsPeripheralReset = false")
	}
	for _, h := range []Handle{a, b, c} {
		if l.Valid(h) {
			t.Errorf("handle %d still valid after reset", h)
		}
	}
	if drv.Calls(drivertest.Reset) != 1 {
		t.Errorf("resets = %d, want 1", drv.Calls(drivertest.Reset))
	}
	s := l.Stats()
	if s.PeripheralResets != 1 || s.SocketsActive != 0 {
		t.Errorf("stats = %+v", s)
	}
	for i := 0; i < Capacity; i++ {
		mustOpen(t, l)
	}
}

// TestLayer_SendFaultReturnsWithGateFree verifies Send only returns,
// and yields, once recovery has handed the serializer back.
func TestLayer_SendFaultReturnsWithGateFree(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)
	drv.Push(drivertest.Send, drivertest.Result{Err: wifi.ErrHardware})
	drv.Push(drivertest.Reset, drivertest.Result{Delay: 20 * time.Millisecond})

	if _, err := l.Send(h, []byte("x")); !sockerr.IsPeripheralReset(err) {
		t.Fatalf("err = %v, want peripheral reset", err)
	}
	if !l.gate.Acquire(0) {
		t.Fatal("serializer still held after Send returned")
	}
	l.gate.Release()
}

func TestLayer_RecvFaultResetsEverything(t *testing.T) {
	l, drv := newLayer(t)
	a := mustOpen(t, l)
	b := mustOpen(t, l)
	drv.Push(drivertest.Recv, drivertest.Result{Err: wifi.ErrTimeout})
	drv.Push(drivertest.Recv, drivertest.Result{Err: wifi.ErrHardware})

	_, err := l.Recv(a, make([]byte, 64))
	if !errors.Is(err, sockerr.ErrPeripheralReset) {
		t.Fatalf("err = %v, want ErrPeripheralReset", err)
	}
	if l.Valid(a) || l.Valid(b) {
		t.Error("handles still valid after reset")
	}
}

func TestLayer_ResetFailure(t *testing.T) {
	l, drv := newLayer(t)
	h := mustOpen(t, l)
	drv.Push(drivertest.Send, drivertest.Result{Err: wifi.ErrHardware})
	drv.Push(drivertest.Reset, drivertest.Result{Err: errors.New("module unresponsive")})

	_, err := l.Send(h, []byte("x"))
	if !errors.Is(err, sockerr.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if errors.Is(err, sockerr.ErrPeripheralReset) {
		t.Error("failed reset reported as peripheral reset")
	}
	if drv.Calls(drivertest.Reset) != 1 {
		t.Errorf("resets = %d, want exactly 1", drv.Calls(drivertest.Reset))
	}
	if !l.Valid(h) {
		t.Error("table wiped although the reset failed")
	}
}

// ── Serialization ────────────────────────────────────────────────────

func TestLayer_DriverNeverSeesOverlap(t *testing.T) {
	l, drv := newLayer(t)

	var wg sync.WaitGroup
	for i := 0; i < Capacity; i++ {
		h := mustOpen(t, l)
		if err := l.SetOption(h, OptRecvTimeout, 20*time.Millisecond); err != nil {
			t.Fatal(err)
		}
		wg.Add(1)
		go func(h Handle) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				l.Send(h, bytes.Repeat([]byte{'x'}, 10)) //nolint:errcheck
				l.Recv(h, make([]byte, 10))              //nolint:errcheck
			}
		}(h)
	}
	wg.Wait()

	if n := drv.Overlaps(); n != 0 {
		t.Fatalf("driver saw %d overlapping commands", n)
	}
	if got := len(drv.Sent()); got != Capacity*20*10 {
		t.Errorf("sent %d bytes, want %d", got, Capacity*20*10)
	}
}

func TestLayer_ConcurrentOpenClose(t *testing.T) {
	l, _ := newLayer(t)

	var opened atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h, err := l.Open()
				if err != nil {
					continue
				}
				opened.Add(1)
				l.Close(h) //nolint:errcheck
			}
		}()
	}
	wg.Wait()

	if opened.Load() == 0 {
		t.Fatal("no open succeeded")
	}
	if got := len(l.table.InUse()); got != 0 {
		t.Errorf("%d slots leaked", got)
	}
}
