// Package snapshot builds and atomically writes the periodic output
// documents named in spec.md §4.5 "Snapshot emitters": aircraft.json,
// the per-tile globe documents, and the compact vrs.json array. Trace
// documents are emitted by internal/trace's writer pool directly since
// they are keyed per-aircraft rather than per-registry-sweep; stats.json
// is handed a pre-serialized payload by internal/stats and just passed
// through WriteJSON.
//
// Grounded on the teacher's foreground/background snapshot pattern
// (internal/lidar.ForegroundSnapshot, internal/lidar/l3grid's lazy
// polar->cartesian projection cache): a point-in-time copy of live state
// is taken under the registry's per-shard locks, then serialized and
// written unlocked, exactly as StoreForegroundSnapshot/GetForegroundSnapshot
// separate "update the live copy" from "serialize for output".
package snapshot

import (
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/flightdeck/trackerd/internal/message"
)

// AircraftDoc is the JSON shape of one aircraft within aircraft.json /
// globe_<tile>.json (spec.md §4.5).
type AircraftDoc struct {
	Hex          string `json:"hex"`
	NonICAO      bool   `json:"noregistration,omitempty"`
	Registration string `json:"r,omitempty"`
	TypeCode     string `json:"t,omitempty"`
	Callsign    string  `json:"flight,omitempty"`
	Squawk      string  `json:"squawk,omitempty"`
	Category    string  `json:"category,omitempty"`
	Emergency   string  `json:"emergency,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`

	BaroAltFt   *float64 `json:"alt_baro,omitempty"`
	GeomAltFt   *float64 `json:"alt_geom,omitempty"`
	BaroRateFpm *float64 `json:"baro_rate,omitempty"`
	GeomRateFpm *float64 `json:"geom_rate,omitempty"`

	GroundSpeedKt *float64 `json:"gs,omitempty"`
	IASKt         *float64 `json:"ias,omitempty"`
	TASKt         *float64 `json:"tas,omitempty"`
	Mach          *float64 `json:"mach,omitempty"`

	Track       *float64 `json:"track,omitempty"`
	MagHeading  *float64 `json:"mag_heading,omitempty"`
	TrueHeading *float64 `json:"true_heading,omitempty"`

	NACp *int     `json:"nac_p,omitempty"`
	NACv *int     `json:"nac_v,omitempty"`
	SIL  *int     `json:"sil,omitempty"`
	NIC  *int     `json:"nic,omitempty"`
	Rc   *float64 `json:"rc,omitempty"`

	GroundAir string `json:"ground_air"`

	RSSI float64 `json:"rssi"`

	SeenSeconds      float64 `json:"seen"`
	SeenPositionSecs float64 `json:"seen_pos,omitempty"`
	Messages         int     `json:"messages,omitempty"`

	TileIndex int `json:"-"`
}

func floatPtr(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func intPtr(v int, ok bool) *int {
	if !ok {
		return nil
	}
	return &v
}

// BuildAircraftDoc converts one live Aircraft into its JSON document,
// reading only currently-valid (non-zero, non-stale) fields.
func BuildAircraftDoc(a *aircraft.Aircraft, now time.Time) AircraftDoc {
	doc := AircraftDoc{
		Hex:          hexAddr(a.Addr),
		NonICAO:      a.NonICAO,
		Registration: a.Registration,
		TypeCode:     a.TypeCode,
		GroundAir:    a.GroundAir.String(),
		RSSI:         a.Signal.Mean(),
		SeenSeconds:  now.Sub(a.LastMessage).Seconds(),
	}

	if !a.Callsign.Zero() && !a.Callsign.Stale {
		doc.Callsign = a.Callsign.Value
	}
	if !a.Squawk.Zero() && !a.Squawk.Stale {
		doc.Squawk = a.Squawk.Value
	}
	if !a.Category.Zero() && !a.Category.Stale {
		doc.Category = a.Category.Value
	}
	if !a.Emergency.Zero() && !a.Emergency.Stale {
		doc.Emergency = a.Emergency.Value
	}

	if !a.LastPosition.IsZero() {
		lat, lon := a.Lat, a.Lon
		doc.Lat, doc.Lon = &lat, &lon
		doc.SeenPositionSecs = now.Sub(a.LastPosition).Seconds()
	}
	doc.TileIndex = a.PositionState.TileIndex

	doc.BaroAltFt = floatPtr(a.BaroAltFt.Value, !a.BaroAltFt.Zero() && !a.BaroAltFt.Stale)
	doc.GeomAltFt = floatPtr(a.GeomAltFt.Value, !a.GeomAltFt.Zero() && !a.GeomAltFt.Stale)
	doc.BaroRateFpm = floatPtr(a.BaroRateFpm.Value, !a.BaroRateFpm.Zero() && !a.BaroRateFpm.Stale)
	doc.GeomRateFpm = floatPtr(a.GeomRateFpm.Value, !a.GeomRateFpm.Zero() && !a.GeomRateFpm.Stale)

	doc.GroundSpeedKt = floatPtr(a.GroundSpeedKt.Value, !a.GroundSpeedKt.Zero() && !a.GroundSpeedKt.Stale)
	doc.IASKt = floatPtr(a.IASKt.Value, !a.IASKt.Zero() && !a.IASKt.Stale)
	doc.TASKt = floatPtr(a.TASKt.Value, !a.TASKt.Zero() && !a.TASKt.Stale)
	doc.Mach = floatPtr(a.Mach.Value, !a.Mach.Zero() && !a.Mach.Stale)

	doc.Track = floatPtr(a.Track.Value, !a.Track.Zero() && !a.Track.Stale)
	doc.MagHeading = floatPtr(a.MagHeading.Value, !a.MagHeading.Zero() && !a.MagHeading.Stale)
	doc.TrueHeading = floatPtr(a.TrueHeading.Value, !a.TrueHeading.Zero() && !a.TrueHeading.Stale)

	doc.NACp = intPtr(a.NACp.Value, !a.NACp.Zero())
	doc.NACv = intPtr(a.NACv.Value, !a.NACv.Zero())
	doc.SIL = intPtr(a.SIL.Value, !a.SIL.Zero())
	doc.NIC = intPtr(a.FusedScalars.NIC.Value, !a.FusedScalars.NIC.Zero())
	doc.Rc = floatPtr(a.FusedScalars.Rc.Value, !a.FusedScalars.Rc.Zero())

	return doc
}

// skipFromAircraftJSON reports whether a should be omitted from the
// global aircraft.json snapshot, per spec.md §4.5: stale aircraft
// (seen older than TRACK_EXPIRE/2) are skipped unless they have a
// recent JAERO position.
func skipFromAircraftJSON(a *aircraft.Aircraft, now time.Time, cfg *config.TrackerConfig) bool {
	if now.Sub(a.LastMessage) <= cfg.GetTrackExpire()/2 {
		return false
	}
	if !a.LastPosition.IsZero() && a.PositionState.Source == message.Jaero && now.Sub(a.LastPosition) <= cfg.GetTrackExpire()/2 {
		return false
	}
	return true
}

func hexAddr(addr uint32) string {
	const hexDigits = "0123456789abcdef"
	buf := [6]byte{}
	for i := 5; i >= 0; i-- {
		buf[i] = hexDigits[addr&0xf]
		addr >>= 4
	}
	return string(buf[:])
}

// FileSystem is the subset of fsutil.FileSystem the snapshot writers
// need, named here so callers can see the dependency at a glance.
type FileSystem = fsutil.FileSystem

// fsutilWriteFileAtomic writes data to name with the standard
// world-readable snapshot permission bits, temp-path-then-rename.
func fsutilWriteFileAtomic(fs FileSystem, name string, data []byte) error {
	return fsutil.WriteFileAtomic(fs, name, data, 0o644)
}
