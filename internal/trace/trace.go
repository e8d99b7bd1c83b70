// Package trace implements the per-aircraft trajectory store: a
// fixed-capacity append-only vector of StatePoint records with a
// parallel quarter-rate StateAll snapshot vector, leg detection, and a
// sharded writer pool that serializes traces to disk (spec.md §4.3).
package trace

import (
	"math"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
)

// StatePoint is one fixed-size trace entry (spec.md §3 "Trace").
type StatePoint struct {
	Lat, Lon    float64
	AltPacked   int32 // packed altitude; top bit reserved as the leg marker
	GSPacked    int16 // packed groundspeed
	TrackDeg    float64
	RateFpm     float64
	TimestampMS int64
}

// Packed-altitude-field bit layout (spec.md §9 REDESIGN FLAGS: "keep the
// packed representation... but expose it through accessors that enforce
// the contract"):
//
//	bits 0..20  altitude + altitudeOffset
//	bit  22     on_ground
//	bit  23     alt_unknown
//	bit  26     leg marker
const (
	altitudeBits   = 0x1FFFFF // bits 0..20
	altitudeOffset = 100000
	onGroundBit    = int32(1) << 22
	altUnknownBit  = int32(1) << 23
	legMarkerBit   = int32(1) << 26
)

// LegMarker reports whether this point's leg-marker bit is set.
func (p StatePoint) LegMarker() bool { return p.AltPacked&legMarkerBit != 0 }

// WithLegMarker returns a copy of p with the leg-marker bit set.
func (p StatePoint) WithLegMarker() StatePoint {
	p.AltPacked |= legMarkerBit
	return p
}

// OnGround reports whether the on-ground bit is set.
func (p StatePoint) OnGround() bool { return p.AltPacked&onGroundBit != 0 }

// AltUnknown reports whether the altitude-unknown bit is set.
func (p StatePoint) AltUnknown() bool { return p.AltPacked&altUnknownBit != 0 }

// AltitudeFt unpacks the altitude field, undoing the offset applied by
// PackAltitude.
func (p StatePoint) AltitudeFt() int32 {
	return (p.AltPacked & altitudeBits) - altitudeOffset
}

// PackAltitude builds the packed altitude field for a new StatePoint
// from its constituent parts.
func PackAltitude(altFt int32, onGround, altUnknown bool) int32 {
	packed := (altFt + altitudeOffset) & altitudeBits
	if onGround {
		packed |= onGroundBit
	}
	if altUnknown {
		packed |= altUnknownBit
	}
	return packed
}

// StateAll is the dense snapshot paired with every fourth StatePoint
// (spec.md §3 "Trace"), carrying enough of the aircraft's fused fields
// to reconstruct full context during playback.
type StateAll struct {
	Callsign  string
	Squawk    string
	GroundAir aircraft.GroundAirState
	NIC, Rc   float64
	NACp      int
	Category  string
}

// Trace is one aircraft's append-only trajectory.
type Trace struct {
	Points   []StatePoint
	All      []*StateAll // All[i] is non-nil iff i%4==0 and a snapshot was captured
	Capacity int

	writeCount int // total writes since creation, for the "full" write cadence

	// lastHistoryDate is the UTC calendar date (YYYY-MM-DD) of the last
	// historical-tree write, so the writer pool rewrites it at most once
	// per day per aircraft (spec.md §4.3 "historical").
	lastHistoryDate string
}

// HistoryDue reports whether a new UTC calendar day has started since
// the last historical-tree write for this trace.
func (t *Trace) HistoryDue(now time.Time) bool {
	return t.lastHistoryDate != now.UTC().Format("2006-01-02")
}

// MarkHistoryWritten records that the historical tree was just written
// for today's UTC date.
func (t *Trace) MarkHistoryWritten(now time.Time) {
	t.lastHistoryDate = now.UTC().Format("2006-01-02")
}

// New creates an empty Trace with the given point capacity
// (config.TrackerConfig.GetTraceSize()).
func New(capacity int) *Trace {
	return &Trace{Capacity: capacity}
}

// ShouldAppend reports whether a new accepted reliable position should
// be appended to the trace, per spec.md §4.3: elapsed since the last
// point meets the configured interval, OR track/altitude/ground-state
// changed enough, OR the position jumped.
func (t *Trace) ShouldAppend(now time.Time, lat, lon float64, altFt, track float64, ground bool, minInterval time.Duration, jumpThresholdMeters float64) bool {
	if len(t.Points) == 0 {
		return true
	}
	last := t.Points[len(t.Points)-1]
	elapsed := time.Duration(now.UnixMilli()-last.TimestampMS) * time.Millisecond
	if elapsed >= minInterval {
		return true
	}
	if math.Abs(track-last.TrackDeg) > 2 {
		return true
	}
	if math.Abs(altFt-float64(last.AltitudeFt())) > 300 {
		return true
	}
	lastAll := t.lastStateAll()
	if lastAll != nil && (lastAll.GroundAir == aircraft.StateGround) != ground {
		return true
	}
	if jumpThresholdMeters > 0 {
		if haversineMeters(last.Lat, last.Lon, lat, lon) > jumpThresholdMeters {
			return true
		}
	}
	return false
}

func (t *Trace) lastStateAll() *StateAll {
	for i := len(t.All) - 1; i >= 0; i-- {
		if t.All[i] != nil {
			return t.All[i]
		}
	}
	return nil
}

// Append adds a new point, evicting the oldest if at capacity, and
// captures a StateAll snapshot whenever the new point's index is a
// multiple of 4 (spec.md §3 Invariants: "trace_all[i] populated iff
// i%4==0"). legMarker sets the reserved bit per leg detection.
func (t *Trace) Append(p StatePoint, legMarker bool, snapshot *StateAll) {
	if legMarker {
		p = p.WithLegMarker()
	}

	evicted := false
	if t.Capacity > 0 && len(t.Points) >= t.Capacity {
		t.Points = t.Points[1:]
		if len(t.All) > 0 {
			t.All = t.All[1:]
		}
		evicted = true
	}
	t.Points = append(t.Points, p)

	idx := len(t.Points) - 1
	if evicted {
		// After eviction the index space shifts; realign All's length
		// to Points' so the i%4==0 invariant is re-derived from the
		// current (post-eviction) slice, not the lifetime index.
	}
	for len(t.All) < len(t.Points) {
		t.All = append(t.All, nil)
	}
	if idx%4 == 0 {
		t.All[idx] = snapshot
	} else {
		t.All[idx] = nil
	}
	t.writeCount++
}

// WriteCount is the number of Append calls since creation, used by the
// writer pool's "every ~122 writes" full-rewrite cadence (spec.md
// §4.3).
func (t *Trace) WriteCount() int { return t.writeCount }

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const r = 6371000.0
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return r * c
}
