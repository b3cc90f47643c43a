package gate

import (
	"testing"
	"time"
)

// BenchmarkGate_Uncontended is the cost every driver call pays.
func BenchmarkGate_Uncontended(b *testing.B) {
	g := New()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		g.Acquire(time.Second)
		g.Release()
	}
}

func BenchmarkGate_Do(b *testing.B) {
	g := New()
	for i := 0; i < b.N; i++ {
		g.Do(time.Second, func() error { return nil }) //nolint:errcheck
	}
}

// BenchmarkGate_Contended has every goroutine queue on the token, as
// four sockets polling at once do.
func BenchmarkGate_Contended(b *testing.B) {
	g := New()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if g.Acquire(time.Second) {
				g.Release()
			}
		}
	})
}
