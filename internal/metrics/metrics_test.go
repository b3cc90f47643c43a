package metrics

import (
	"encoding/json"
	"testing"
)

func TestCollector_Sockets(t *testing.T) {
	c := New()

	c.SocketOpened()
	c.SocketOpened()
	if c.ActiveSockets() != 2 {
		t.Errorf("active = %d, want 2", c.ActiveSockets())
	}
	if c.TotalSockets() != 2 {
		t.Errorf("total = %d, want 2", c.TotalSockets())
	}

	c.SocketClosed()
	if c.ActiveSockets() != 1 {
		t.Errorf("active = %d, want 1", c.ActiveSockets())
	}
	if c.TotalSockets() != 2 {
		t.Errorf("total should remain 2, got %d", c.TotalSockets())
	}
}

func TestCollector_SocketsWiped(t *testing.T) {
	c := New()
	c.SocketOpened()
	c.SocketOpened()
	c.SocketOpened()

	c.SocketsWiped()

	if c.ActiveSockets() != 0 {
		t.Errorf("active after wipe = %d, want 0", c.ActiveSockets())
	}
	if c.TotalSockets() != 3 {
		t.Errorf("total should survive a wipe, got %d", c.TotalSockets())
	}
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	if c.TotalBytesIn() != 1124 {
		t.Errorf("bytes in = %d, want 1124", c.TotalBytesIn())
	}
	if c.TotalBytesOut() != 512 {
		t.Errorf("bytes out = %d, want 512", c.TotalBytesOut())
	}
}

func TestCollector_Timeouts(t *testing.T) {
	c := New()
	c.SoftTimeout()
	c.SoftTimeout()
	c.GateTimeout()

	if c.SoftTimeouts() != 2 {
		t.Errorf("soft timeouts = %d, want 2", c.SoftTimeouts())
	}
	if c.GateTimeouts() != 1 {
		t.Errorf("gate timeouts = %d, want 1", c.GateTimeouts())
	}
}

func TestCollector_PeripheralResets(t *testing.T) {
	c := New()
	c.PeripheralReset()

	if c.PeripheralResets() != 1 {
		t.Errorf("resets = %d, want 1", c.PeripheralResets())
	}
	if c.Snapshot().LastReset == "" {
		t.Error("expected non-empty last reset timestamp")
	}
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	if c.ErrorCount() != 2 {
		t.Errorf("errors = %d, want 2", c.ErrorCount())
	}
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.SocketOpened()
	c.Connected()
	c.BytesReceived(100)
	c.BytesSent(50)
	c.RecordError("test")

	snap := c.Snapshot()
	if snap.SocketsActive != 1 {
		t.Errorf("snap active = %d", snap.SocketsActive)
	}
	if snap.Connects != 1 {
		t.Errorf("snap connects = %d", snap.Connects)
	}
	if snap.BytesIn != 100 {
		t.Errorf("snap bytes in = %d", snap.BytesIn)
	}
	if snap.ErrorsTotal != 1 {
		t.Errorf("snap errors = %d", snap.ErrorsTotal)
	}
	if snap.LastErrorMessage != "test" {
		t.Errorf("snap error msg = %q", snap.LastErrorMessage)
	}
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SocketOpened()
	c.BytesSent(42)

	raw := c.JSON()
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		t.Fatalf("JSON parse error: %v", err)
	}
	if snap.SocketsActive != 1 {
		t.Errorf("JSON active = %d", snap.SocketsActive)
	}
	if snap.BytesOut != 42 {
		t.Errorf("JSON bytes out = %d", snap.BytesOut)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	// None of these should panic.
	c.SocketOpened()
	c.SocketClosed()
	c.SocketsWiped()
	c.Connected()
	c.BytesReceived(100)
	c.BytesSent(100)
	c.SoftTimeout()
	c.GateTimeout()
	c.PeripheralReset()
	c.RecordError("test")

	if c.ActiveSockets() != 0 || c.TotalBytesIn() != 0 || c.ErrorCount() != 0 {
		t.Error("nil collector should return 0")
	}
	if c.PeripheralResets() != 0 || c.SoftTimeouts() != 0 {
		t.Error("nil collector should return 0")
	}
	if snap := c.Snapshot(); snap.SocketsActive != 0 {
		t.Error("nil snapshot should be zero")
	}
	if c.JSON() == "" {
		t.Error("nil JSON should return valid JSON")
	}
}
