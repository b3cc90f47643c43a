package slots

import (
	"sync"
	"testing"
	"time"
)

var testDefaults = Defaults{
	Flags:       FlagSecure,
	SendTimeout: 10 * time.Second,
	RecvTimeout: 10 * time.Second,
}

func TestTable_StartsFreeAndClosed(t *testing.T) {
	tbl := New(4)
	if tbl.Cap() != 4 {
		t.Fatalf("Cap() = %d, want 4", tbl.Cap())
	}
	for i := 0; i < tbl.Cap(); i++ {
		if tbl.Valid(i) {
			t.Errorf("slot %d valid before any allocation", i)
		}
		if !tbl.Flags(i).Has(Closed) {
			t.Errorf("slot %d flags = %b, want both closed bits", i, tbl.Flags(i))
		}
	}
}

func TestTable_AllocateUntilFull(t *testing.T) {
	tbl := New(4)
	seen := map[int]bool{}
	for i := 0; i < 4; i++ {
		h := tbl.Allocate(testDefaults)
		if h < 0 {
			t.Fatalf("allocation %d failed", i)
		}
		if seen[h] {
			t.Fatalf("handle %d handed out twice", h)
		}
		seen[h] = true
	}
	if h := tbl.Allocate(testDefaults); h != -1 {
		t.Errorf("allocation on a full table = %d, want -1", h)
	}
}

func TestTable_AllocateAppliesDefaults(t *testing.T) {
	tbl := New(2)
	h := tbl.Allocate(testDefaults)

	if f := tbl.Flags(h); f != FlagSecure {
		t.Errorf("flags = %b, want secure only", f)
	}
	send, recv := tbl.Timeouts(h)
	if send != 10*time.Second || recv != 10*time.Second {
		t.Errorf("timeouts = (%v, %v), want (10s, 10s)", send, recv)
	}
}

func TestTable_FreeAndReuse(t *testing.T) {
	tbl := New(1)
	h := tbl.Allocate(testDefaults)
	tbl.SetFlags(h, FlagConnected)
	tbl.SetRecvTimeout(h, time.Millisecond)
	tbl.Free(h)

	if tbl.Valid(h) {
		t.Fatal("freed slot still valid")
	}
	h2 := tbl.Allocate(testDefaults)
	if h2 != h {
		t.Fatalf("reallocation = %d, want %d", h2, h)
	}
	if tbl.Flags(h2).Has(FlagConnected) {
		t.Error("connected flag survived reallocation")
	}
	if _, recv := tbl.Timeouts(h2); recv != 10*time.Second {
		t.Errorf("recv timeout = %v, want default", recv)
	}
}

// TestTable_GenerationsNeverRepeat verifies a claim made after a free
// or a reinitialize cannot be mistaken for an earlier one on the same
// index.
func TestTable_GenerationsNeverRepeat(t *testing.T) {
	tbl := New(1)
	h := tbl.Allocate(testDefaults)
	first := tbl.Generation(h)
	if first == 0 || !tbl.Owned(h, first) {
		t.Fatalf("Generation = %d, Owned = %v", first, tbl.Owned(h, first))
	}

	tbl.Free(h)
	if tbl.Generation(h) != 0 || tbl.Owned(h, first) {
		t.Error("free slot still owned")
	}

	h = tbl.Allocate(testDefaults)
	second := tbl.Generation(h)
	if second == first || tbl.Owned(h, first) {
		t.Errorf("reclaim kept generation %d", first)
	}

	tbl.Reinitialize()
	h = tbl.Allocate(testDefaults)
	if third := tbl.Generation(h); third == first || third == second {
		t.Errorf("generation %d reused after reinitialize", third)
	}
	if tbl.Owned(-1, 1) || tbl.Generation(5) != 0 {
		t.Error("out-of-range index owned")
	}
}

func TestTable_OutOfRangeIsHarmless(t *testing.T) {
	tbl := New(2)
	for _, i := range []int{-1, 2, 100} {
		if tbl.Valid(i) {
			t.Errorf("Valid(%d) = true", i)
		}
		tbl.Free(i)
		tbl.SetFlags(i, FlagConnected)
		tbl.SetSendTimeout(i, time.Second)
		tbl.SetRecvTimeout(i, time.Second)
	}
}

func TestTable_Reinitialize(t *testing.T) {
	tbl := New(4)
	for i := 0; i < 3; i++ {
		h := tbl.Allocate(testDefaults)
		tbl.SetFlags(h, FlagConnected)
	}
	if got := len(tbl.InUse()); got != 3 {
		t.Fatalf("InUse() = %d slots, want 3", got)
	}

	tbl.Reinitialize()

	if got := tbl.InUse(); len(got) != 0 {
		t.Errorf("InUse() after reinitialize = %v", got)
	}
	for i := 0; i < tbl.Cap(); i++ {
		if f := tbl.Flags(i); f != Closed {
			t.Errorf("slot %d flags = %b, want closed only", i, f)
		}
	}
}

func TestTable_ConcurrentAllocate(t *testing.T) {
	const workers = 32
	tbl := New(4)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h := tbl.Allocate(testDefaults); h >= 0 {
				mu.Lock()
				got = append(got, h)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(got) != 4 {
		t.Fatalf("%d allocations succeeded, want 4", len(got))
	}
	seen := map[int]bool{}
	for _, h := range got {
		if seen[h] {
			t.Errorf("handle %d claimed twice", h)
		}
		seen[h] = true
	}
}
