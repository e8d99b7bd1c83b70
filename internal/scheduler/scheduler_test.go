package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverEmitsSnapshotsAndStopsCleanly(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)

	now := time.Now()
	a, _ := reg.GetOrCreate(aircraft.Key{Addr: 1}, now)
	a.LastMessage = now

	one := 50
	cfg.PeriodicUpdateMillis = &one

	d := NewDriver(Config{
		Registry:      reg,
		Tuning:        cfg,
		FS:            fs,
		JSONDir:       "/json",
		TotalMessages: func() int64 { return 7 },
	})

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := fs.ReadFile("/json/aircraft.json")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, d.IsRunning())
}

func TestDriverStopIsIdempotentAndSynchronous(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	one := 20
	cfg.PeriodicUpdateMillis = &one

	d := NewDriver(Config{Registry: reg, Tuning: cfg, FS: fs, JSONDir: "/json"})

	go func() { _ = d.Run(context.Background()) }()
	require.Eventually(t, d.IsRunning, time.Second, 5*time.Millisecond)

	d.Stop()
	assert.False(t, d.IsRunning())
	d.Stop() // must not block or panic
}

func TestDriverRunsCoarseTickAtConfiguredCadence(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	five := 5
	cfg.PeriodicUpdateMillis = &five

	var coarseCalls int32
	d := NewDriver(Config{
		Registry:         reg,
		Tuning:           cfg,
		FS:               fs,
		JSONDir:          "/json",
		CoarseEveryTicks: 2,
		OnCoarseTick:     func(time.Time) { atomic.AddInt32(&coarseCalls, 1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&coarseCalls) > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
}

func TestStaleSweepPoolRemovesExpiredAircraftAcrossShards(t *testing.T) {
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	now := time.Now()

	for addr := uint32(0); addr < 16; addr++ {
		a, _ := reg.GetOrCreate(aircraft.Key{Addr: addr}, now)
		a.LastMessage = now.Add(-cfg.GetTrackExpire() * 10)
	}

	pool := NewStaleSweepPool(reg, DefaultStaleSweepWorkers)
	var totalRemoved int32
	pool.OnSwept = func(_, _ int, removed []aircraft.Key) {
		atomic.AddInt32(&totalRemoved, int32(len(removed)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	pool.Trigger(now.Add(cfg.GetTrackExpire() * 20))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&totalRemoved) == 16
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, reg.Len())

	cancel()
	pool.Wait()
}

func TestStaleSweepPoolCloseUnblocksWorkers(t *testing.T) {
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)

	pool := NewStaleSweepPool(reg, 2)
	ctx := context.Background()
	pool.Start(ctx)

	pool.Close()
	done := make(chan struct{})
	go func() { pool.Wait(); close(done) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not shut down after Close")
	}
}
