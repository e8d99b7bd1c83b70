package ingest

import "sync"

// netWriterFlushThreshold is the buffer fill level past which NetWriter
// fans its contents out to every client (spec.md §4.1 "Outbound
// writers").
const netWriterFlushThreshold = 16 * 1024

// NetWriter is a single shared outbound buffer attached to a Service;
// producers reserve space with PrepareWrite, fill it, then call
// CompleteWrite (spec.md §3 "NetWriter").
type NetWriter struct {
	mu  sync.Mutex
	buf []byte
	svc *Service
}

// NewNetWriter creates a NetWriter that flushes into svc's clients.
func NewNetWriter(svc *Service) *NetWriter {
	return &NetWriter{svc: svc}
}

// PrepareWrite reserves n bytes at the tail of the buffer and returns a
// slice to fill; it never returns nil (unlike the C original's
// back-pressure-capable variant) because Go's buffer simply grows --
// flushing, not allocation, is where back-pressure is enforced, per
// client send-queue capacity in Client.Enqueue.
func (w *NetWriter) PrepareWrite(n int) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start : start+n]
}

// CompleteWrite finalizes a reservation and flushes to every client of
// the owning service if the buffer has grown past the flush threshold.
func (w *NetWriter) CompleteWrite() {
	w.mu.Lock()
	shouldFlush := len(w.buf) >= netWriterFlushThreshold
	w.mu.Unlock()
	if shouldFlush {
		w.Flush()
	}
}

// Flush fans the buffered bytes out to every client of the owning
// service and resets the buffer, dropping any client whose queue would
// overflow (spec.md §4.1 "Outbound writers").
func (w *NetWriter) Flush() {
	w.mu.Lock()
	data := w.buf
	w.buf = nil
	w.mu.Unlock()
	if len(data) == 0 {
		return
	}

	for _, c := range w.svc.Clients() {
		if !c.Enqueue(data) {
			w.svc.DropClient(c)
		}
	}
}
