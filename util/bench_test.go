package util

import (
	"bytes"
	"io"
	"testing"
)

// payloadWriter counts writes, each of which would be one module send.
type payloadWriter struct{ sends int }

func (w *payloadWriter) Write(p []byte) (int, error) {
	w.sends++
	return len(p), nil
}

// BenchmarkCopyPooled measures the relay loop in module-sized chunks.
// The reader is wrapped so io.CopyBuffer cannot bypass the pooled
// buffer through WriterTo.
func BenchmarkCopyPooled(b *testing.B) {
	payload := bytes.Repeat([]byte("X"), 64*DefaultBufSize)
	b.SetBytes(int64(len(payload)))
	b.ReportAllocs()

	w := &payloadWriter{}
	for i := 0; i < b.N; i++ {
		src := struct{ io.Reader }{bytes.NewReader(payload)}
		if _, err := copyPooled(w, src); err != nil {
			b.Fatal(err)
		}
	}
	b.ReportMetric(float64(w.sends)/float64(b.N), "sends/op")
}

// BenchmarkBufPool compares pooled payload buffers with fresh ones.
func BenchmarkBufPool(b *testing.B) {
	b.Run("pool", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			buf := GetBuf()
			(*buf)[0] = byte(i)
			PutBuf(buf)
		}
	})
	b.Run("alloc", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			buf := make([]byte, DefaultBufSize)
			buf[0] = byte(i)
		}
	})
}
