package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/flightdeck/trackerd/internal/monitoring"
)

// sliceCount is how many rotor slices each worker divides its shard
// into (spec.md §4.3: "visiting 1/64 slices of each worker's shard"),
// so a full sweep of one shard spans sliceCount worker ticks.
const sliceCount = 64

// DefaultRotorInterval is the per-tick spacing named in spec.md §4.3
// ("a 25s rotor").
const DefaultRotorInterval = 25 * time.Second

// WriterPool persists trace state to disk: one worker per
// aircraft.Registry shard, each ticking on its own rotor and writing
// only the 1/sliceCount of its shard whose turn it is, so write load is
// spread evenly rather than bursting every tick.
type WriterPool struct {
	registry      *aircraft.Registry
	fs            fsutil.FileSystem
	root          string
	publicRoot    string
	historyRoot   string
	capacity      int
	rotorInterval time.Duration

	wg sync.WaitGroup
}

// NewWriterPool creates a WriterPool over registry, persisting
// warm-restart state under root, public trace_recent/trace_full
// documents under publicRoot, and the once-a-day historical tree under
// historyRoot, with the given per-aircraft point capacity.
func NewWriterPool(registry *aircraft.Registry, fs fsutil.FileSystem, root, publicRoot, historyRoot string, capacity int) *WriterPool {
	return &WriterPool{
		registry:      registry,
		fs:            fs,
		root:          root,
		publicRoot:    publicRoot,
		historyRoot:   historyRoot,
		capacity:      capacity,
		rotorInterval: DefaultRotorInterval,
	}
}

// Start launches one worker goroutine per registry shard. It returns
// immediately; call Wait (after cancelling ctx) to block for shutdown.
func (p *WriterPool) Start(ctx context.Context) {
	for i := 0; i < p.registry.ShardCount(); i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Wait blocks until every worker has exited after ctx is cancelled.
func (p *WriterPool) Wait() { p.wg.Wait() }

func (p *WriterPool) runWorker(ctx context.Context, shardIndex int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.rotorInterval)
	defer ticker.Stop()

	slice := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepSlice(shardIndex, slice)
			slice = (slice + 1) % sliceCount
		}
	}
}

// sweepSlice writes every aircraft in shardIndex whose address falls in
// the given rotor slice and whose TraceWrite flag is set.
func (p *WriterPool) sweepSlice(shardIndex, slice int) {
	for _, a := range p.registry.Snapshot(shardIndex) {
		if int(a.Addr)%sliceCount != slice {
			continue
		}
		if !a.TraceWrite {
			continue
		}
		t, ok := a.TraceHandle.(*Trace)
		if !ok || t == nil {
			continue
		}
		addrHex := fmt.Sprintf("%06x", a.Addr)
		if err := Save(p.fs, p.root, addrHex, t); err != nil {
			monitoring.Logf("trace: persist %s failed: %v", addrHex, err)
			continue
		}

		if err := WriteRecent(p.fs, p.publicRoot, addrHex, t); err != nil {
			monitoring.Logf("trace: write recent %s failed: %v", addrHex, err)
		}
		if ShouldWriteFull(t) {
			if err := WriteFull(p.fs, p.publicRoot, addrHex, t); err != nil {
				monitoring.Logf("trace: write full %s failed: %v", addrHex, err)
			}
		}
		now := time.Now()
		if t.HistoryDue(now) {
			if err := WriteHistorical(p.fs, p.historyRoot, addrHex, t, now); err != nil {
				monitoring.Logf("trace: write historical %s failed: %v", addrHex, err)
			} else {
				t.MarkHistoryWritten(now)
			}
		}

		a.TraceWrite = false
	}
}

// AttachOrCreate gives a newly-created Aircraft its trace handle: it
// tries to load a persisted trace left from a prior run (warm restart,
// spec.md §4.3 "Persistence / warm restart") and falls back to a fresh
// empty Trace when none exists, is unreadable, or no longer fits
// capacity. fsutil.FileSystem exposes no directory listing, so restore
// is necessarily lazy -- triggered per-aircraft the first time the
// registry learns of that address, rather than a bulk startup scan; the
// teacher's own FileSystem interface has no ReadDir either; here "the
// first time" means GetOrCreate's true return, wired from
// internal/tracker.
func AttachOrCreate(a *aircraft.Aircraft, fs fsutil.FileSystem, root string, capacity int) *Trace {
	addrHex := fmt.Sprintf("%06x", a.Addr)
	if t, err := Load(fs, root, addrHex); err == nil {
		if FitsCapacity(t, capacity) {
			t.Capacity = capacity
			a.TraceHandle = t
			return t
		}
		monitoring.Logf("trace: discarding persisted trace for %s (%d points exceeds capacity %d)", addrHex, len(t.Points), capacity)
	}
	t := New(capacity)
	a.TraceHandle = t
	return t
}
