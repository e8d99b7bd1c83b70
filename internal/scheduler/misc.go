package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/monitoring"
	"github.com/flightdeck/trackerd/internal/snapshot"
)

// StateBlobShards mirrors internal/snapshot.StateBlobShards, the number
// of state-blob partitions the misc worker cycles through (spec.md
// §4.6 "state-blob writing (one of 256 shards per cycle)").
const StateBlobShards = snapshot.StateBlobShards

// DefaultMiscInterval is the misc worker's tick spacing.
const DefaultMiscInterval = 1 * time.Second

// MiscConfig wires the misc worker's three spec-named responsibilities
// that the Driver's per-tick/coarse-tick hooks don't already cover
// (spec.md §4.6's "misc worker": heatmap writing, state-blob writing,
// metadata-DB hot-reload -- "API update" and "client snapshot" are the
// Driver's own OnClientsTick/emitSnapshots). Each field is an injected
// hook rather than a concrete dependency, the same way Driver.Config
// takes OnClientsTick/OnCoarseTick, so this package stays decoupled
// from internal/stats, internal/metadata, and internal/snapshot.
type MiscConfig struct {
	Interval time.Duration

	OnHeatmap        func(now time.Time)
	OnStateBlobShard func(now time.Time, shard int)
	OnMetadataReload func(now time.Time)

	Logger func(format string, v ...interface{})
}

// MiscWorker is the fourth disjoint worker group spec.md §5 names ("one
// misc thread for heatmap / DB reload / state blobs / API refresh"),
// grounded on StaleSweepPool's ticker-driven loop but running a single
// goroutine rather than a pool: its three responsibilities are
// independent, low-frequency, and cheap enough not to need sharding
// across workers themselves -- only the state-blob target shard
// rotates from cycle to cycle.
type MiscWorker struct {
	cfg         MiscConfig
	shardCursor int

	wg sync.WaitGroup
}

// NewMiscWorker creates a MiscWorker from cfg, defaulting Interval to
// DefaultMiscInterval and Logger to monitoring.Logf when unset.
func NewMiscWorker(cfg MiscConfig) *MiscWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMiscInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = monitoring.Logf
	}
	return &MiscWorker{cfg: cfg}
}

// Start launches the worker's goroutine. It returns immediately; call
// Wait (after cancelling ctx) to block for shutdown.
func (w *MiscWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *MiscWorker) run(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

func (w *MiscWorker) tick(now time.Time) {
	if w.cfg.OnHeatmap != nil {
		w.cfg.OnHeatmap(now)
	}
	if w.cfg.OnStateBlobShard != nil {
		w.cfg.OnStateBlobShard(now, w.shardCursor)
		w.shardCursor = (w.shardCursor + 1) % StateBlobShards
	}
	if w.cfg.OnMetadataReload != nil {
		w.cfg.OnMetadataReload(now)
	}
}

// Wait blocks until the worker's goroutine exits after ctx cancellation.
func (w *MiscWorker) Wait() {
	w.wg.Wait()
}
