// Package tracker implements the per-aircraft state machine: source-
// priority field fusion, plausibility-gated position acceptance, CPR
// decoding, and the ground/air state machine (spec.md §4.2). It is
// grounded on the teacher's internal/lidar.Tracker (the single
// update-on-caller-thread entry point over a shared registry,
// generalized here from a single mutex to the per-shard
// aircraft.Registry.WithAircraft serialization already built for that
// package).
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/clock"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/flightdeck/trackerd/internal/geoindex"
	"github.com/flightdeck/trackerd/internal/message"
	"github.com/flightdeck/trackerd/internal/trace"
)

// ReceiverLocator is the narrow view of internal/receiverloc.Locatorer
// this package needs: the receiver's own best-known position, used as
// the lowest-priority CPR/local-decode reference (spec.md §4.2 "Global"/
// "Local"). Declared here, not imported from internal/receiverloc, so
// this package stays decoupled the same way internal/ingest decouples
// from internal/tracker via MessageHandler.
type ReceiverLocator interface {
	Current() (lat, lon float64, ok bool)
}

// TileObserver is notified whenever an aircraft's tile membership changes
// (spec.md §4.4 "binds aircraft to regional buckets for sharded snapshot
// emission"); the snapshot package supplies the concrete sharding.
type TileObserver interface {
	OnTileChange(key aircraft.Key, oldTile, newTile int)
}

// MetadataLookup is the narrow view of internal/metadata.Store this
// package needs to fill in Identity.Registration/TypeCode (spec.md §3
// "copied from the metadata DB if present"), named here for the same
// decoupling reason as ReceiverLocator.
type MetadataLookup interface {
	Lookup(addr uint32) (registration, typeCode string, ok bool)
}

// Tracker owns the aircraft registry and applies every inbound message to
// it. One Tracker is shared by every ingest Service.
type Tracker struct {
	Registry *aircraft.Registry
	Config   *config.TrackerConfig
	Clock    clock.Clock
	Tiles    *geoindex.Index
	Locator  ReceiverLocator
	Observer TileObserver
	Metadata MetadataLookup

	FS        fsutil.FileSystem
	TraceRoot string
}

// New creates a Tracker over an existing registry.
func New(registry *aircraft.Registry, cfg *config.TrackerConfig, fs fsutil.FileSystem, traceRoot string) *Tracker {
	return &Tracker{
		Registry:  registry,
		Config:    cfg,
		Clock:     clock.RealClock{},
		Tiles:     geoindex.New(geoindex.DefaultRects()),
		FS:        fs,
		TraceRoot: traceRoot,
	}
}

// UpdateFromMessage satisfies ingest.MessageHandler. It executes fully on
// the caller's goroutine (spec.md §4.2 "Executes fully on the caller
// thread").
func (t *Tracker) UpdateFromMessage(ctx context.Context, msg *message.Message) error {
	if msg == nil {
		return fmt.Errorf("tracker: nil message")
	}
	now := t.Clock.Now()
	key := aircraft.Key{Addr: msg.AddrICAO, NonICAO: msg.NonICAO}

	addrReliable := msg.Source.AddressReliable()

	existing := t.Registry.Get(key)
	if existing == nil && !addrReliable {
		// "Only address-reliable messages may create a new aircraft
		// record" (spec.md §4.2 "Address reliability").
		return nil
	}

	t.Registry.WithAircraft(key, now, func(a *aircraft.Aircraft) {
		if a.TraceHandle == nil {
			a.TraceHandle = trace.AttachOrCreate(a, t.FS, t.TraceRoot, t.Config.GetTraceSize())
		}
		if t.Metadata != nil && a.Registration == "" {
			if reg, typ, ok := t.Metadata.Lookup(a.Addr); ok {
				a.Registration, a.TypeCode = reg, typ
			}
		}
		t.applyMessage(a, msg, now)
	})
	return nil
}

// applyMessage runs the full accept/fuse/gate sequence for one message
// against one already-locked Aircraft.
func (t *Tracker) applyMessage(a *aircraft.Aircraft, msg *message.Message, now time.Time) {
	if !a.Seen.IsZero() && now.Sub(a.Seen) > t.Config.GetAddrReliableWindow() && !msg.Source.AddressReliable() {
		// "any record not refreshed in 45s must stop accepting updates"
		return
	}
	if msg.Source.AddressReliable() {
		a.Seen = now
	}
	a.LastMessage = now

	t.fuseScalars(a, msg, now)
	t.fuseAltitude(a, msg, now)
	t.resolveHeading(a, msg, now)

	oldTile := a.TileIndex
	t.updatePosition(a, msg, now)
	if a.TileIndex != oldTile && t.Observer != nil {
		t.Observer.OnTileChange(a.Key, oldTile, a.TileIndex)
	}

	t.updateGroundAir(a, msg, now)
}

// accept is the generic accept_data rule (spec.md §4.2 "Field
// acceptance"), layering the extra MLAT/JAERO overwrite guards the
// ValidityRecord itself doesn't know about: "MLAT and below may not
// overwrite anything within 30s of a higher source's update; JAERO may
// not overwrite anything within 600s."
func accept[T any](v *message.ValidityRecord[T], src message.Source, ts, now time.Time, cfg *config.TrackerConfig) bool {
	if !v.Accept(src, ts, now, cfg.GetTrackStale()) {
		return false
	}
	if v.Updated.IsZero() || !src.Worse(v.LastSource) {
		return true
	}
	switch {
	case src.AtLeast(message.MLAT) && src.Worse(message.ModeS) && now.Sub(v.Updated) < cfg.GetMlatGuard():
		return false
	case src == message.Jaero && now.Sub(v.Updated) < cfg.GetJaeroGuard():
		return false
	}
	return true
}

// commit applies the accepted value and the PRIO self-upgrade rule
// ("PRIO records itself internally as ADSB so it cannot later be
// overridden by ADSB"), then advances the field's next_reduce_forward
// deadline and marks the aircraft eligible for the reduced-bandwidth
// forward cycle if it was reached (spec.md §4.2 "On accept").
func commit[T any](a *aircraft.Aircraft, v *message.ValidityRecord[T], value T, src message.Source, ts time.Time, cfg *config.TrackerConfig) {
	storedSrc := src
	if storedSrc == message.Prio {
		storedSrc = message.ADSB
	}
	v.Set(value, storedSrc, ts)
	if v.ReduceForwardEligible(ts, cfg.GetReduceForwardInterval()) {
		a.ReduceForward = true
	}
}

// fuseScalars applies accept_data to every independent (non-altitude,
// non-heading, non-position) fused scalar the message carries.
func (t *Tracker) fuseScalars(a *aircraft.Aircraft, msg *message.Message, now time.Time) {
	f := &msg.Fields
	src := msg.Source
	ts := msg.SystemTime
	if ts.IsZero() {
		ts = now
	}

	if f.HaveGroundSpeedKt && accept(&a.GroundSpeedKt, src, ts, now, t.Config) {
		commit(a, &a.GroundSpeedKt, f.GroundSpeedKt, src, ts, t.Config)
	}
	if f.HaveIAS && accept(&a.IASKt, src, ts, now, t.Config) {
		commit(a, &a.IASKt, f.IASKt, src, ts, t.Config)
	}
	if f.HaveTAS && accept(&a.TASKt, src, ts, now, t.Config) {
		commit(a, &a.TASKt, f.TASKt, src, ts, t.Config)
	}
	if f.HaveMach && accept(&a.Mach, src, ts, now, t.Config) {
		commit(a, &a.Mach, f.Mach, src, ts, t.Config)
	}
	if f.HaveBaroRate && accept(&a.BaroRateFpm, src, ts, now, t.Config) {
		commit(a, &a.BaroRateFpm, f.BaroRateFpm, src, ts, t.Config)
	}
	if f.HaveGeomRate && accept(&a.GeomRateFpm, src, ts, now, t.Config) {
		commit(a, &a.GeomRateFpm, f.GeomRateFpm, src, ts, t.Config)
	}
	if f.HaveSquawk && accept(&a.Squawk, src, ts, now, t.Config) {
		commit(a, &a.Squawk, f.Squawk, src, ts, t.Config)
	}
	if f.HaveCallsign && accept(&a.Callsign, src, ts, now, t.Config) {
		commit(a, &a.Callsign, f.Callsign, src, ts, t.Config)
	}
	if f.HaveEmergency && accept(&a.Emergency, src, ts, now, t.Config) {
		commit(a, &a.Emergency, f.Emergency, src, ts, t.Config)
	}
	if f.HaveCategory && accept(&a.Category, src, ts, now, t.Config) {
		commit(a, &a.Category, f.Category, src, ts, t.Config)
	}
	if f.HaveNavAltitudeMCP && accept(&a.NavAltitudeMCPFt, src, ts, now, t.Config) {
		commit(a, &a.NavAltitudeMCPFt, f.NavAltitudeMCPFt, src, ts, t.Config)
	}
	if f.HaveNavAltitudeFMS && accept(&a.NavAltitudeFMSFt, src, ts, now, t.Config) {
		commit(a, &a.NavAltitudeFMSFt, f.NavAltitudeFMSFt, src, ts, t.Config)
	}
	if f.HaveNavHeading && accept(&a.NavHeadingDeg, src, ts, now, t.Config) {
		commit(a, &a.NavHeadingDeg, f.NavHeadingDeg, src, ts, t.Config)
	}
	if f.HaveNavQNH && accept(&a.NavQNHMb, src, ts, now, t.Config) {
		commit(a, &a.NavQNHMb, f.NavQNHMb, src, ts, t.Config)
	}
	if f.HaveNavModes && accept(&a.NavModes, src, ts, now, t.Config) {
		commit(a, &a.NavModes, f.NavModes, src, ts, t.Config)
	}
	if f.HaveNACp && accept(&a.NACp, src, ts, now, t.Config) {
		commit(a, &a.NACp, f.NACp, src, ts, t.Config)
	}
	if f.HaveNACv && accept(&a.NACv, src, ts, now, t.Config) {
		commit(a, &a.NACv, f.NACv, src, ts, t.Config)
	}
	if f.HaveSIL && accept(&a.SIL, src, ts, now, t.Config) {
		commit(a, &a.SIL, f.SIL, src, ts, t.Config)
	}
	if f.HaveGVA && accept(&a.GVA, src, ts, now, t.Config) {
		commit(a, &a.GVA, f.GVA, src, ts, t.Config)
	}
	if f.HaveSDA && accept(&a.SDA, src, ts, now, t.Config) {
		commit(a, &a.SDA, f.SDA, src, ts, t.Config)
	}
	// a.FusedScalars.NIC/Rc must be qualified: PositionState also defines
	// NIC/Rc (the values snapshotted onto the last *accepted position*,
	// spec.md §3 "Position state"), and both are embedded directly in
	// Aircraft, so the unqualified a.NIC/a.Rc would be an ambiguous
	// selector.
	if f.HaveNIC && accept(&a.FusedScalars.NIC, src, ts, now, t.Config) {
		commit(a, &a.FusedScalars.NIC, f.NIC, src, ts, t.Config)
	}
	if f.HaveRc && accept(&a.FusedScalars.Rc, src, ts, now, t.Config) {
		commit(a, &a.FusedScalars.Rc, f.RcMeters, src, ts, t.Config)
	}
}

