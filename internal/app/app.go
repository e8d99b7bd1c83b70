// Package app wires every subsystem into one running process: the
// ingest listeners/connectors, the shared Tracker, the snapshot/trace/
// stats writers, the stale-sweep and periodic-snapshot scheduler, the
// receiver-location service, the sqlite-backed store, and the
// apiserver's gRPC stream plus debug HTTP surface.
//
// Grounded on the teacher's cmd/radar/radar.go main(): construct every
// subsystem, start its goroutine under one shared sync.WaitGroup,
// install the admin routes each subsystem owns onto a single mux,
// signal.NotifyContext for graceful shutdown, wg.Wait at the end.
// Pulled out of main() into a reusable App type (spec.md §2.3
// "no singleton": App owns the Registry instance directly, nothing in
// this tree reaches it through a package-level global) so cmd/trackerd
// stays a thin flag-parsing shell.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/apiserver"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/flightdeck/trackerd/internal/ingest"
	"github.com/flightdeck/trackerd/internal/message"
	"github.com/flightdeck/trackerd/internal/metadata"
	"github.com/flightdeck/trackerd/internal/monitoring"
	"github.com/flightdeck/trackerd/internal/receiverloc"
	"github.com/flightdeck/trackerd/internal/scheduler"
	"github.com/flightdeck/trackerd/internal/snapshot"
	"github.com/flightdeck/trackerd/internal/stats"
	"github.com/flightdeck/trackerd/internal/store"
	"github.com/flightdeck/trackerd/internal/trace"
	"github.com/flightdeck/trackerd/internal/tracker"

	"tailscale.com/tsweb"
)

// App holds every live subsystem for one running trackerd process.
type App struct {
	Config *config.ServiceConfig
	Tuning *config.TrackerConfig
	FS     fsutil.FileSystem

	Registry *aircraft.Registry
	Tracker  *tracker.Tracker
	Store    *store.DB
	Locator  receiverloc.Locatorer
	Stats    *stats.Collector
	Metadata *metadata.Store

	WriterPool *trace.WriterPool
	StaleSweep *scheduler.StaleSweepPool
	Driver     *scheduler.Driver
	Misc       *scheduler.MiscWorker
	Publisher  *apiserver.Publisher

	services []*ingest.Service
	mux      *http.ServeMux

	wg sync.WaitGroup
}

// New constructs every subsystem from cfg/tuning but starts nothing; call
// Run to bring the process up.
func New(cfg *config.ServiceConfig, tuning *config.TrackerConfig) (*App, error) {
	if err := tuning.Validate(); err != nil {
		return nil, fmt.Errorf("app: invalid tuning config: %w", err)
	}

	fs := fsutil.OSFileSystem{}

	db, err := store.NewDB(cfg.SQLiteStatePath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	locator, err := newLocator(cfg, tuning)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("app: open receiver locator: %w", err)
	}

	registry := aircraft.NewRegistry(tuning)
	meta := metadata.NewStore(cfg.MetadataPath)
	if err := meta.Reload(); err != nil {
		monitoring.Logf("app: initial metadata load: %v", err)
	}

	trk := tracker.New(registry, tuning, fs, cfg.StateDir)
	trk.Locator = &locatorAdapter{loc: locator}
	trk.Metadata = &metadataAdapter{store: meta}

	writerPool := trace.NewWriterPool(registry, fs, cfg.StateDir, cfg.JSONDir, cfg.GlobeHistoryDir, tuning.GetTraceSize())

	staleSweep := scheduler.NewStaleSweepPool(registry, scheduler.DefaultStaleSweepWorkers)

	collector := stats.NewCollector(time.Now())

	publisher := apiserver.NewPublisher(apiserver.Config{ListenAddr: cfg.GRPCAddr, MaxClients: 32})

	a := &App{
		Config:     cfg,
		Tuning:     tuning,
		FS:         fs,
		Registry:   registry,
		Tracker:    trk,
		Store:      db,
		Locator:    locator,
		Stats:      collector,
		Metadata:   meta,
		WriterPool: writerPool,
		StaleSweep: staleSweep,
		Publisher:  publisher,
		mux:        http.NewServeMux(),
	}

	a.Driver = scheduler.NewDriver(scheduler.Config{
		Registry:      registry,
		Tuning:        tuning,
		FS:            fs,
		JSONDir:       cfg.JSONDir,
		TotalMessages: a.totalMessages,
		StaleSweep:    staleSweep,
		OnClientsTick: a.onClientsTick,
		OnCoarseTick:  a.onCoarseTick,
	})

	a.Misc = scheduler.NewMiscWorker(scheduler.MiscConfig{
		OnHeatmap:        a.onHeatmap,
		OnStateBlobShard: a.onStateBlobShard,
		OnMetadataReload: a.onMetadataReload,
	})

	for _, l := range cfg.Listeners {
		a.services = append(a.services, ingest.NewService(l.Name, toIngestFraming(l.Framing), sourceHintFor(l.Framing), trk))
	}

	a.attachRoutes()

	return a, nil
}

func newLocator(cfg *config.ServiceConfig, tuning *config.TrackerConfig) (receiverloc.Locatorer, error) {
	if cfg.ReceiverGPSPort != "" {
		return receiverloc.NewReceiverLocator(cfg.ReceiverGPSPort, receiverloc.DefaultPortOptions())
	}
	lat, lon := tuning.GetReceiverLocation()
	return receiverloc.NewDisabledLocator(lat, lon, 0), nil
}

// locatorAdapter narrows receiverloc.Locatorer's Fix-returning Current to
// the plain lat/lon tracker.ReceiverLocator expects, keeping
// internal/tracker decoupled from internal/receiverloc's richer Fix type.
type locatorAdapter struct {
	loc receiverloc.Locatorer
}

func (l *locatorAdapter) Current() (lat, lon float64, ok bool) {
	fix, has := l.loc.Current()
	if !has || !fix.Valid {
		return 0, 0, false
	}
	return fix.Latitude, fix.Longitude, true
}

// metadataAdapter narrows metadata.Store's Record-returning Lookup to
// the plain registration/type-code pair tracker.MetadataLookup expects,
// keeping internal/tracker decoupled from internal/metadata's Record
// type the same way locatorAdapter decouples it from receiverloc.Fix.
type metadataAdapter struct {
	store *metadata.Store
}

func (m *metadataAdapter) Lookup(addr uint32) (registration, typeCode string, ok bool) {
	rec, found := m.store.Lookup(addr)
	if !found {
		return "", "", false
	}
	return rec.Registration, rec.TypeCode, true
}

func toIngestFraming(f config.FramingMode) ingest.Framing {
	switch f {
	case config.FramingASCII:
		return ingest.FramingASCII
	case config.FramingBeast:
		return ingest.FramingBeast
	case config.FramingBeastCommand:
		return ingest.FramingBeastCommand
	case config.FramingSBS:
		return ingest.FramingSBS
	default:
		return ingest.FramingIgnore
	}
}

// sourceHintFor picks the message.Source a service's decoded messages are
// tagged with absent CRC/MLAT disambiguation handled elsewhere (spec.md
// §4.1 "Source tagging").
func sourceHintFor(f config.FramingMode) message.Source {
	switch f {
	case config.FramingSBS:
		return message.SBS
	case config.FramingBeast, config.FramingBeastCommand:
		return message.ModeSChecked
	default:
		return message.Indirect
	}
}

// attachRoutes mounts every subsystem's admin routes onto the shared mux,
// grounded on the teacher's main() doing
// "radarSerial.AttachAdminRoutes(mux); database.AttachAdminRoutes(mux)"
// against one api.Server-owned mux.
func (a *App) attachRoutes() {
	a.Store.AttachAdminRoutes(a.mux)
	a.Locator.AttachAdminRoutes(a.mux)
	apiserver.AttachRoutes(a.mux, a.Config.JSONDir, a.Config.GlobeHistoryDir, a.Publisher)

	debug := tsweb.Debugger(a.mux)
	debug.Handle("stats.html", "Rolling traffic/aircraft stats dashboard", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats.RenderDashboard(w, a.Stats.Snapshot(time.Now()), time.Now())
	}))
}

// Run starts every background subsystem and blocks until ctx is
// cancelled, then shuts everything down in reverse order (spec.md §2.3
// "the process running state").
func (a *App) Run(ctx context.Context) error {
	for _, l := range a.Config.Listeners {
		svc := a.serviceByName(l.Name)
		if err := svc.Listen(ctx, l.Addr); err != nil {
			return err
		}
		monitoring.Logf("app: listening %s (%s) on %s", l.Name, l.Framing, l.Addr)
	}
	for _, c := range a.Config.Connectors {
		svc := a.serviceByName(c.Name)
		svc.AddConnector(ctx, c.Host, c.Port, a.Tuning.GetNetConnectorDelay())
	}

	a.WriterPool.Start(ctx)
	a.StaleSweep.Start(ctx)
	a.Misc.Start(ctx)

	if err := a.Publisher.Start(); err != nil {
		return fmt.Errorf("app: start publisher: %w", err)
	}

	debugServer := &http.Server{Addr: a.Config.DebugAddr, Handler: a.mux}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		monitoring.Logf("app: debug HTTP listening on %s", a.Config.DebugAddr)
		if err := debugServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("app: debug HTTP server error: %v", err)
		}
	}()

	if locMonitor, ok := a.Locator.(*receiverloc.Locator); ok {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := locMonitor.Monitor(ctx); err != nil && err != context.Canceled {
				monitoring.Logf("app: receiver location monitor error: %v", err)
			}
		}()
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Driver.Run(ctx); err != nil && err != context.Canceled {
			monitoring.Logf("app: scheduler driver error: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("app: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	debugServer.Shutdown(shutdownCtx)

	a.Driver.Stop()
	a.Publisher.Stop()
	for _, svc := range a.services {
		svc.Close()
	}
	a.WriterPool.Wait()
	a.StaleSweep.Wait()
	a.Misc.Wait()
	a.Locator.Close()
	a.Store.Close()

	a.wg.Wait()
	monitoring.Logf("app: shutdown complete")
	return nil
}

func (a *App) serviceByName(name string) *ingest.Service {
	for _, s := range a.services {
		if s.Name == name {
			return s
		}
	}
	panic(fmt.Sprintf("app: no ingest service registered for %q", name))
}

func (a *App) totalMessages() int64 {
	return a.Stats.Snapshot(time.Now()).AllTime.MessagesTotal
}

// onClientsTick runs every scheduler tick (spec.md §4.6's "every
// PERIODIC_UPDATE_MILLIS" cadence): refreshes the aircraft-count gauges
// stats.json needs and publishes one live update batch to the gRPC
// stream clients.
func (a *App) onClientsTick(now time.Time) {
	var tracked, withPosition int64
	a.Registry.ForEachShard(func(_ int, shard []*aircraft.Aircraft) {
		for _, ac := range shard {
			tracked++
			if !ac.LastPosition.IsZero() {
				withPosition++
			}
		}
	})
	a.Stats.SetAircraftCounts(tracked, withPosition)

	batch := apiserver.BuildBatch(a.Registry, now)
	a.Publisher.Publish(batch)
}

// onCoarseTick runs once per scheduler.DefaultCoarseEveryTicks ticks: once
// the current stats bucket is stats.BucketSeconds old it rolls the stats
// window and persists the completed bucket to sqlite, and on every call it
// writes the stats.json/stats.prom pair.
func (a *App) onCoarseTick(now time.Time) {
	if now.Unix()-a.Stats.Snapshot(now).Current.StartUnix >= stats.BucketSeconds {
		snap := a.Stats.Rollover(now)
		if err := stats.PersistBucket(a.Store, snap); err != nil {
			monitoring.Logf("app: persist stats bucket: %v", err)
		}
	}
	if err := stats.WriteDocuments(a.FS, a.Config.JSONDir, a.Stats.Snapshot(now), now); err != nil {
		monitoring.Logf("app: write stats documents: %v", err)
	}
}

// onHeatmap writes heatmap.json from the live range histogram, one of
// the misc worker's three responsibilities (spec.md §4.6 "heatmap
// writing").
func (a *App) onHeatmap(now time.Time) {
	if err := stats.WriteHeatmap(a.FS, a.Config.HeatmapDir, a.Stats.Snapshot(now), now); err != nil {
		monitoring.Logf("app: write heatmap: %v", err)
	}
}

// onStateBlobShard dumps one of the 256 state-blob partitions per
// misc-worker cycle (spec.md §4.6 "state-blob writing (one of 256
// shards per cycle)"), amortizing a full-registry dump over
// scheduler.StateBlobShards cycles.
func (a *App) onStateBlobShard(now time.Time, shard int) {
	if err := snapshot.WriteStateBlobShard(a.FS, a.Config.StateDir, a.Registry, shard, now); err != nil {
		monitoring.Logf("app: write state blob shard %d: %v", shard, err)
	}
}

// onMetadataReload re-stats the metadata-DB file and swaps in a fresh
// table if it changed (spec.md §4.6 "the metadata-DB hot-reload").
func (a *App) onMetadataReload(now time.Time) {
	if err := a.Metadata.ReloadIfChanged(); err != nil {
		monitoring.Logf("app: metadata reload: %v", err)
	}
}
