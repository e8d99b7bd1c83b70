// Package aircraft holds the long-lived per-address tracked record
// (spec.md §3 "Aircraft") and the sharded hash-bucketed registry that
// owns it, generalized from the teacher's single-map-plus-mutex track
// registry (internal/lidar.Tracker) into the multi-shard form spec.md §2
// calls "hash-bucketed registry of Aircraft keyed by 24-bit address".
package aircraft

import (
	"time"

	"github.com/flightdeck/trackerd/internal/cpr"
	"github.com/flightdeck/trackerd/internal/message"
)

// Key is the 25-bit logical identity: a 24-bit address plus the
// "non-ICAO" bit (spec.md §3).
type Key struct {
	Addr    uint32
	NonICAO bool
}

// AddressType distinguishes how an address was learned/assigned.
type AddressType int

const (
	AddrTypeICAO AddressType = iota
	AddrTypeICAONonTransponder
	AddrTypeTISB
	AddrTypeADSR
	AddrTypeADSBOther
)

// GroundAirState is the ground/air state machine (spec.md §4.2).
type GroundAirState int

const (
	StateInvalid GroundAirState = iota
	StateGround
	StateAirborne
	StateUncertain
)

func (s GroundAirState) String() string {
	switch s {
	case StateGround:
		return "ground"
	case StateAirborne:
		return "airborne"
	case StateUncertain:
		return "uncertain"
	default:
		return "invalid"
	}
}

// Identity groups the fields that name the aircraft (spec.md §3
// "Identity").
type Identity struct {
	Key
	AddrType        AddressType
	AddrTypeUpdated time.Time // must be monotonic (spec.md §3 Invariants)
	Registration    string
	TypeCode        string
}

// FusedScalars groups the per-field-validity-tracked scalars (spec.md §3
// "Fused scalars"). Each hot field gets its own ValidityRecord so the
// tracker's accept_data can be called per field without reflection.
type FusedScalars struct {
	BaroAltFt     message.ValidityRecord[float64]
	GeomAltFt     message.ValidityRecord[float64]
	GroundSpeedKt message.ValidityRecord[float64]
	IASKt         message.ValidityRecord[float64]
	TASKt         message.ValidityRecord[float64]
	Mach          message.ValidityRecord[float64]

	Track       message.ValidityRecord[float64]
	MagHeading  message.ValidityRecord[float64]
	TrueHeading message.ValidityRecord[float64]

	BaroRateFpm message.ValidityRecord[float64]
	GeomRateFpm message.ValidityRecord[float64]

	Squawk    message.ValidityRecord[string]
	Callsign  message.ValidityRecord[string]
	Emergency message.ValidityRecord[string]
	Category  message.ValidityRecord[string]

	NavAltitudeMCPFt message.ValidityRecord[float64]
	NavAltitudeFMSFt message.ValidityRecord[float64]
	NavHeadingDeg    message.ValidityRecord[float64]
	NavQNHMb         message.ValidityRecord[float64]
	NavModes         message.ValidityRecord[[]string]

	NACp message.ValidityRecord[int]
	NACv message.ValidityRecord[int]
	SIL  message.ValidityRecord[int]
	GVA  message.ValidityRecord[int]
	SDA  message.ValidityRecord[int]
	NIC  message.ValidityRecord[int]
	Rc   message.ValidityRecord[float64]

	// HRD/TAH cache bits from opstatus, used to disambiguate heading
	// kind (spec.md §4.2 "Heading resolution").
	HRD bool
	TAH bool

	// AltReliable is the altitude-fusion reliability counter (spec.md
	// §4.2 "Altitude fusion"); the current BaroAltFt is considered
	// invalid once it hits zero.
	AltReliable int
}

// PositionState groups the position and its two independent CPR
// reliability counters (spec.md §3 "Position state").
type PositionState struct {
	Lat, Lon     float64
	NIC, Rc      float64
	Surface      bool
	LastPosition time.Time
	// Source is the message.Source that produced LastPosition, so the
	// aircraft.json emitter can apply its JAERO-position carve-out
	// (spec.md §4.5) without re-deriving it from the trace.
	Source message.Source

	LatReliable, LonReliable float64

	PosReliableOdd  int
	PosReliableEven int

	// TileIndex is the single tile this aircraft is a member of, or -1
	// if it has no reliable position yet (spec.md §4.4).
	TileIndex int
}

// CPRScratch holds the most recent odd/even CPR frames used by global
// decode (spec.md §3 "CPR scratch").
type CPRScratch struct {
	Even, Odd CPRFrameRecord
}

// CPRFrameRecord is one cached CPR frame plus its provenance.
type CPRFrameRecord struct {
	Frame     cpr.Frame
	NIC, Rc   float64
	Timestamp time.Time
	Source    message.Source
	Valid     bool
}

const signalRingSize = 8

// Signal groups the RSSI ring buffer (spec.md §3 "Signal").
type Signal struct {
	RSSIRing  [signalRingSize]float64
	RSSICount int // number of valid entries, caps at signalRingSize
	RSSIHead  int // next write index
	NoSignal  int // consecutive-no-signal counter
}

// Push records a new RSSI sample into the ring.
func (s *Signal) Push(rssi float64) {
	s.RSSIRing[s.RSSIHead] = rssi
	s.RSSIHead = (s.RSSIHead + 1) % signalRingSize
	if s.RSSICount < signalRingSize {
		s.RSSICount++
	}
	s.NoSignal = 0
}

// Mean returns the mean of the currently-populated ring entries, or 0 if
// empty.
func (s *Signal) Mean() float64 {
	if s.RSSICount == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < s.RSSICount; i++ {
		sum += s.RSSIRing[i]
	}
	return sum / float64(s.RSSICount)
}

// Derived groups fields computed from other fused fields rather than
// received directly (spec.md §3 "Derived").
type Derived struct {
	WindSpeedKt  float64
	WindDirDeg   float64
	WindRefAltFt float64
	WindUpdated  time.Time

	OATCelsius float64
	TATCelsius float64
	OATUpdated time.Time

	DeclinationDeg   float64
	DeclinationCache time.Time
}

// Aircraft is the long-lived per-address tracked record (spec.md §3).
type Aircraft struct {
	Identity
	FusedScalars
	PositionState
	CPRScratch
	Signal
	Derived

	// Extra holds per-field ValidityRecords for scalars that don't
	// warrant a dedicated struct field -- SPEC_FULL.md §5's
	// "side table" for cold fields layered on after the hot ones above
	// are exhausted. Keyed by field name.
	Extra map[string]*message.ValidityRecord[float64]

	GroundAir        GroundAirState
	GroundAirUpdated time.Time

	// Seen is the last time an address-reliable message refreshed this
	// record (spec.md §4.2 "Address reliability"); a record not
	// refreshed within AddrReliableWindow stops accepting updates.
	Seen time.Time
	// LastMessage is the last time *any* message updated this record,
	// used for the Lifecycle removal timeout (spec.md §3 "Lifecycle").
	LastMessage time.Time
	// HadPosition is sticky once true; never cleared (spec.md §3
	// "Lifecycle").
	HadPosition bool

	// TraceWrite is set by the tracker when a new trace point should be
	// serialized by the trace writer pool (spec.md §4.3 "Writer").
	TraceWrite bool
	// ReduceForward marks this aircraft as eligible for inclusion in a
	// reduced-bandwidth forward cycle (spec.md §4.2 "On accept").
	ReduceForward bool

	// TraceHandle is an opaque reference to this aircraft's trace,
	// owned by internal/trace; aircraft itself never walks it.
	TraceHandle any
}

// New creates an empty, freshly-seen Aircraft for key.
func New(key Key, now time.Time) *Aircraft {
	a := &Aircraft{
		Extra:       make(map[string]*message.ValidityRecord[float64]),
		Seen:        now,
		LastMessage: now,
		GroundAir:   StateInvalid,
	}
	a.Identity.Key = key
	a.PositionState.TileIndex = -1
	return a
}

// ExtraField returns (creating if absent) the side-table ValidityRecord
// for name.
func (a *Aircraft) ExtraField(name string) *message.ValidityRecord[float64] {
	if v, ok := a.Extra[name]; ok {
		return v
	}
	v := &message.ValidityRecord[float64]{}
	a.Extra[name] = v
	return v
}

// ReliableForGlobalCPR reports the invariant named in spec.md §3:
// pos_reliable_odd > 0 && pos_reliable_even > 0 iff eligible for
// global-CPR-anchored output.
func (a *Aircraft) ReliableForGlobalCPR() bool {
	return a.PosReliableOdd > 0 && a.PosReliableEven > 0
}

// Position returns the last accepted position and whether it is set.
func (a *Aircraft) Position() (cpr.Position, bool) {
	if a.LastPosition.IsZero() {
		return cpr.Position{}, false
	}
	return cpr.Position{Lat: a.Lat, Lon: a.Lon}, true
}

// RefreshStaleness recomputes the Stale flag on every fused-scalar
// ValidityRecord against now, the stale-sweep pool's per-shard pass
// (spec.md §4.6 "updating per-field validity staleness").
func (a *Aircraft) RefreshStaleness(now time.Time) {
	staleAfter := message.DefaultStaleAfter

	a.BaroAltFt.RefreshStale(now, staleAfter)
	a.GeomAltFt.RefreshStale(now, staleAfter)
	a.GroundSpeedKt.RefreshStale(now, staleAfter)
	a.IASKt.RefreshStale(now, staleAfter)
	a.TASKt.RefreshStale(now, staleAfter)
	a.Mach.RefreshStale(now, staleAfter)

	a.Track.RefreshStale(now, staleAfter)
	a.MagHeading.RefreshStale(now, staleAfter)
	a.TrueHeading.RefreshStale(now, staleAfter)

	a.BaroRateFpm.RefreshStale(now, staleAfter)
	a.GeomRateFpm.RefreshStale(now, staleAfter)

	a.Squawk.RefreshStale(now, staleAfter)
	a.Callsign.RefreshStale(now, staleAfter)
	a.Emergency.RefreshStale(now, staleAfter)
	a.Category.RefreshStale(now, staleAfter)

	a.NavAltitudeMCPFt.RefreshStale(now, staleAfter)
	a.NavAltitudeFMSFt.RefreshStale(now, staleAfter)
	a.NavHeadingDeg.RefreshStale(now, staleAfter)
	a.NavQNHMb.RefreshStale(now, staleAfter)
	a.NavModes.RefreshStale(now, staleAfter)

	a.NACp.RefreshStale(now, staleAfter)
	a.NACv.RefreshStale(now, staleAfter)
	a.SIL.RefreshStale(now, staleAfter)
	a.GVA.RefreshStale(now, staleAfter)
	a.SDA.RefreshStale(now, staleAfter)
	a.NIC.RefreshStale(now, staleAfter)
	a.Rc.RefreshStale(now, staleAfter)

	for _, v := range a.Extra {
		v.RefreshStale(now, staleAfter)
	}
}
