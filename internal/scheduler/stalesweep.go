// Package scheduler drives the periodic work named in spec.md §4.6: a
// driver loop that wakes on a fixed interval and fans out snapshot
// emission, stale-aircraft sweeping, and rolling-stats refresh; plus a
// dedicated stale-sweep worker pool signaled via condition variables,
// each owning a disjoint shard range of the aircraft registry.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/monitoring"
)

// DefaultStaleSweepWorkers is the stale-sweep pool size named in
// spec.md §4.6 ("a secondary stale-sweep pool, default 4 workers").
const DefaultStaleSweepWorkers = 4

// StaleSweepPool removes TTL-expired aircraft and refreshes per-field
// validity staleness, with each worker owning a contiguous, disjoint
// range of the registry's shards (spec.md §4.6/§5 "each worker owns a
// contiguous shard of the aircraft hash table").
//
// Workers block on a condition variable rather than polling, grounded on
// the teacher's internal/serialmux.TestableSerialPort readCond pattern
// (mu + sync.Cond.Wait in a loop over a predicate, woken by Broadcast):
// here the predicate is "a new sweep generation has been requested, or
// the pool is closed".
type StaleSweepPool struct {
	registry *aircraft.Registry

	mu         sync.Mutex
	cond       *sync.Cond
	generation int
	closed     bool
	now        time.Time

	workerCount int
	wg          sync.WaitGroup

	// OnSwept, if set, is called by each worker after it finishes a
	// sweep of its shard range, with the keys it removed.
	OnSwept func(shardStart, shardEnd int, removed []aircraft.Key)
}

// NewStaleSweepPool creates a pool of workerCount workers over
// registry's shards. workerCount must evenly divide
// registry.ShardCount(); spec.md's default is 4 workers over the
// registry's 8 shards (2 shards per worker).
func NewStaleSweepPool(registry *aircraft.Registry, workerCount int) *StaleSweepPool {
	p := &StaleSweepPool{registry: registry, workerCount: workerCount}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. It returns immediately; call
// Wait after the pool's context is cancelled (via Close) to block for
// shutdown.
func (p *StaleSweepPool) Start(ctx context.Context) {
	shardCount := p.registry.ShardCount()
	perWorker := shardCount / p.workerCount
	for i := 0; i < p.workerCount; i++ {
		start := i * perWorker
		end := start + perWorker
		if i == p.workerCount-1 {
			end = shardCount // last worker absorbs any remainder
		}
		p.wg.Add(1)
		go p.runWorker(ctx, start, end)
	}

	go func() {
		<-ctx.Done()
		p.Close()
	}()
}

// Wait blocks until every worker has exited.
func (p *StaleSweepPool) Wait() { p.wg.Wait() }

// Trigger requests a new sweep pass at the given timestamp, waking every
// worker.
func (p *StaleSweepPool) Trigger(now time.Time) {
	p.mu.Lock()
	p.now = now
	p.generation++
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Close stops all workers, waking any blocked on the condition
// variable.
func (p *StaleSweepPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *StaleSweepPool) runWorker(ctx context.Context, shardStart, shardEnd int) {
	defer p.wg.Done()
	seen := 0
	for {
		p.mu.Lock()
		for p.generation == seen && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		seen = p.generation
		now := p.now
		p.mu.Unlock()

		removed := p.sweepRange(shardStart, shardEnd, now)
		if p.OnSwept != nil {
			p.OnSwept(shardStart, shardEnd, removed)
		}
	}
}

// sweepRange removes TTL-expired aircraft and refreshes validity
// staleness across shards [shardStart, shardEnd).
func (p *StaleSweepPool) sweepRange(shardStart, shardEnd int, now time.Time) []aircraft.Key {
	var removed []aircraft.Key
	for shard := shardStart; shard < shardEnd; shard++ {
		for _, a := range p.registry.Snapshot(shard) {
			a.RefreshStaleness(now)
		}
	}
	for _, key := range p.registry.RemoveExpiredRange(now, shardStart, shardEnd) {
		removed = append(removed, key)
	}
	if len(removed) > 0 {
		monitoring.Logf("stalesweep: removed %d aircraft from shards [%d,%d)", len(removed), shardStart, shardEnd)
	}
	return removed
}
