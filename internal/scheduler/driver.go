package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/flightdeck/trackerd/internal/snapshot"
)

// DefaultCoarseEveryTicks is how many driver ticks elapse between coarser
// maintenance passes (the stale sweep and the OnCoarseTick hook) when the
// caller does not override it (spec.md §4.6: these
// run "at a coarser cadence" than the main per-tick snapshot work).
const DefaultCoarseEveryTicks = 25

// Config wires a Driver to the registry, config, and output filesystem
// it drives snapshots against, plus the hooks for work owned by other
// packages.
type Config struct {
	Registry *aircraft.Registry
	Tuning   *config.TrackerConfig
	FS       fsutil.FileSystem

	// JSONDir is the directory aircraft.json, globe_*.json/.bin, and
	// vrs.json are written into (spec.md §4.5).
	JSONDir string

	// TotalMessages reports the running message counter for
	// aircraft.json's "messages" field.
	TotalMessages func() int64

	// StaleSweep is triggered at the coarse cadence; may be nil if the
	// caller doesn't want automatic sweeping (e.g. in tests).
	StaleSweep *StaleSweepPool

	// OnClientsTick runs every tick, before snapshot emission;
	// internal/app uses it to refresh the aircraft-count gauges and
	// publish one gRPC update batch; it does not accept, drain or flush
	// network clients.
	OnClientsTick func(now time.Time)

	// OnCoarseTick runs at the coarse cadence alongside the stale
	// sweep; internal/app uses it for the stats rollover and the
	// stats.json/stats.prom writes. No Mode A/C matching or API
	// indexing runs at this cadence.
	OnCoarseTick func(now time.Time)

	// CoarseEveryTicks overrides DefaultCoarseEveryTicks if non-zero.
	CoarseEveryTicks int

	Logger *log.Logger
}

// Driver is the periodic driver thread (spec.md §4.6): it wakes at
// PeriodicUpdateMillis, emits due snapshot documents, and -- at a
// coarser cadence -- triggers the stale-sweep pool and the caller's
// other coarse-cadence work.
//
// Grounded on the teacher's internal/lidar.BackgroundFlusher: a single
// ticker-driven loop guarded by a running flag, with Stop()/IsRunning()
// and a stopCh/doneCh pair for clean shutdown, generalized from "flush
// one thing on an interval" to "run a fixed sequence of due work every
// tick".
type Driver struct {
	cfg Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	coarseEvery   int
	coarseCounter int
	vrsCursor     int

	lastJSONWrite time.Time
}

// NewDriver creates a Driver from cfg. cfg.Logger defaults to
// log.Default() if nil.
func NewDriver(cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	coarseEvery := cfg.CoarseEveryTicks
	if coarseEvery <= 0 {
		coarseEvery = DefaultCoarseEveryTicks
	}
	return &Driver{cfg: cfg, coarseEvery: coarseEvery}
}

// Run starts the driver loop. It blocks until ctx is cancelled or Stop
// is called, and returns nil on clean shutdown.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	defer func() {
		close(d.doneCh)
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	interval := time.Duration(d.cfg.Tuning.GetPeriodicUpdateMillis()) * time.Millisecond
	if interval <= 0 {
		d.cfg.Logger.Printf("scheduler: periodic update interval is zero or negative, not starting")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.cfg.Logger.Printf("scheduler: driver started: interval=%v", interval)

	for {
		select {
		case <-ctx.Done():
			d.cfg.Logger.Printf("scheduler: driver stopping due to context cancellation")
			return nil
		case <-d.stopCh:
			d.cfg.Logger.Printf("scheduler: driver stopping due to Stop() call")
			return nil
		case now := <-ticker.C:
			d.tick(now)
		}
	}
}

// Stop requests the driver to stop, blocking until it has. Safe to call
// multiple times.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	select {
	case <-d.stopCh:
	default:
		close(d.stopCh)
	}
	d.mu.Unlock()
	<-d.doneCh
}

// IsRunning reports whether the driver loop is active.
func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// tick runs one pass of the sequence named in spec.md §4.6.
func (d *Driver) tick(now time.Time) {
	if d.cfg.OnClientsTick != nil {
		d.cfg.OnClientsTick(now)
	}

	d.emitSnapshots(now)

	d.coarseCounter++
	if d.coarseCounter >= d.coarseEvery {
		d.coarseCounter = 0
		d.runCoarse(now)
	}
}

// emitSnapshots writes aircraft.json (rate-limited by
// GetJSONIntervalMillis), the globe tiles, and one VRS part per tick,
// cycling through snapshot.VRSParts so a full vrs.json document is the
// union of VRSParts successive ticks (spec.md §4.5).
func (d *Driver) emitSnapshots(now time.Time) {
	jsonInterval := time.Duration(d.cfg.Tuning.GetJSONIntervalMillis()) * time.Millisecond
	if d.lastJSONWrite.IsZero() || now.Sub(d.lastJSONWrite) >= jsonInterval {
		var total int64
		if d.cfg.TotalMessages != nil {
			total = d.cfg.TotalMessages()
		}
		if err := snapshot.WriteAircraftJSON(d.cfg.FS, d.cfg.JSONDir, d.cfg.Registry, d.cfg.Tuning, now, total); err != nil {
			d.cfg.Logger.Printf("scheduler: write aircraft.json failed: %v", err)
		}
		if err := snapshot.WriteGlobeTiles(d.cfg.FS, d.cfg.JSONDir, d.cfg.Registry, now); err != nil {
			d.cfg.Logger.Printf("scheduler: write globe tiles failed: %v", err)
		}
		d.lastJSONWrite = now
	}

	if err := snapshot.WriteVRSPart(d.cfg.FS, d.cfg.JSONDir, d.cfg.Registry, now, d.vrsCursor); err != nil {
		d.cfg.Logger.Printf("scheduler: write vrs part %d failed: %v", d.vrsCursor, err)
	}
	d.vrsCursor = (d.vrsCursor + 1) % snapshot.VRSParts
}

// runCoarse fires the stale-sweep pool and the caller's coarse-cadence
// hook.
func (d *Driver) runCoarse(now time.Time) {
	if d.cfg.StaleSweep != nil {
		d.cfg.StaleSweep.Trigger(now)
	}
	if d.cfg.OnCoarseTick != nil {
		d.cfg.OnCoarseTick(now)
	}
}
