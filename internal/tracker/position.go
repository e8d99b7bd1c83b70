package tracker

import (
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/cpr"
	"github.com/flightdeck/trackerd/internal/message"
	"github.com/flightdeck/trackerd/internal/trace"
	"github.com/flightdeck/trackerd/internal/units"
)

const (
	// maxCPRFrameGapAirborne/Surface* bound how far apart two cached
	// odd/even frames may be in time and still be paired for a global
	// decode (spec.md §4.2 "CPR position decoding"). Surface pairing only
	// gets the loose 50s window at or below surfaceSlowGroundSpeedKt; a
	// faster-moving surface target must pair within 25s.
	maxCPRFrameGapAirborne    = 10 * time.Second
	maxCPRFrameGapSurfaceSlow = 50 * time.Second
	maxCPRFrameGapSurfaceFast = 25 * time.Second
	surfaceSlowGroundSpeedKt  = 25.0

	// localRefMaxAge is how long a last-known position stays eligible as
	// the preferred local-decode reference.
	localRefMaxAge = 10 * time.Minute

	// duplicateWindow marks an identical position within this window as
	// a duplicate, suppressing trace append and reduced-rate forwarding
	// without penalizing reliability (spec.md §4.2 "Duplicate
	// suppression").
	duplicateWindow = 3 * time.Second

	// mlatPositionSkipWindow is the absolute window within which MLAT
	// (and below) position reports are skipped outright rather than
	// speed-gated (spec.md §4.2 "Position acceptance").
	mlatPositionSkipWindow = 25 * time.Second

	// fastTrackRadiusMeters/fastTrackGap implement "a decode within this
	// radius of the last reliable position after a gap fast-tracks to
	// the reliable threshold" (spec.md §4.2).
	fastTrackRadiusMeters = 12000.0
	fastTrackGap          = 2 * time.Minute

	surfaceSpeedFloorKt   = 20.0
	surfaceSpeedCeilKt    = 150.0
	airborneSpeedFloorKt  = 200.0
	freshnessBonusKtPerS  = 2.0
	speedAllowanceFactor  = 1.3
	trackBonusMaxOffsetDeg = 90.0
)

// updatePosition applies spec.md §4.2's CPR decode, acceptance gates,
// reliability counters, and tile membership update.
func (t *Tracker) updatePosition(a *aircraft.Aircraft, msg *message.Message, now time.Time) {
	f := &msg.Fields
	ts := msg.SystemTime
	if ts.IsZero() {
		ts = now
	}

	if f.HaveDirectPosition {
		t.acceptPosition(a, f.DirectLat, f.DirectLon, msg.Source, ts, now, false, 0)
		return
	}
	if !f.HaveCPR {
		return
	}

	ptype := cpr.Airborne
	if f.CPRType == message.CPRSurface {
		ptype = cpr.Surface
	}
	frame := cpr.Frame{Odd: f.CPROdd, Lat: f.CPRLatEnc, Lon: f.CPRLonEnc, Type: ptype}

	rec := aircraft.CPRFrameRecord{Frame: frame, Timestamp: ts, Source: msg.Source, Valid: true}
	if frame.Odd {
		a.CPRScratch.Odd = rec
	} else {
		a.CPRScratch.Even = rec
	}

	if pos, ok := t.tryGlobalDecode(a, ptype, msg.Source, ts); ok {
		t.acceptPosition(a, pos.Lat, pos.Lon, msg.Source, ts, now, ptype == cpr.Surface, 0)
		return
	}

	if ref, ok := t.localReference(a, ptype, now); ok {
		pos := cpr.DecodeLocal(frame, ref)
		// Local decode is only trustworthy out to a shrinking
		// receiver-range limit (spec.md §4.2 "Local"); a global decode
		// needs no such override since its ambiguity is already
		// resolved by the odd/even pairing.
		rangeOverride := t.localAcceptanceRangeMeters(ref.Lat, ptype)
		t.acceptPosition(a, pos.Lat, pos.Lon, msg.Source, ts, now, ptype == cpr.Surface, rangeOverride)
	}
}

// tryGlobalDecode pairs the freshest cached odd/even frames of the same
// type/source and within the type-dependent max gap.
func (t *Tracker) tryGlobalDecode(a *aircraft.Aircraft, ptype cpr.PositionType, src message.Source, ts time.Time) (cpr.Position, bool) {
	even, odd := a.CPRScratch.Even, a.CPRScratch.Odd
	if !even.Valid || !odd.Valid {
		return cpr.Position{}, false
	}
	if even.Frame.Type != ptype || odd.Frame.Type != ptype {
		return cpr.Position{}, false
	}
	if even.Source != src || odd.Source != src {
		return cpr.Position{}, false
	}
	maxGap := maxCPRFrameGapAirborne
	if ptype == cpr.Surface {
		maxGap = maxCPRFrameGapSurfaceFast
		if !a.GroundSpeedKt.Zero() && !a.GroundSpeedKt.Stale && a.GroundSpeedKt.Value <= surfaceSlowGroundSpeedKt {
			maxGap = maxCPRFrameGapSurfaceSlow
		}
	}
	gap := odd.Timestamp.Sub(even.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if gap > maxGap {
		return cpr.Position{}, false
	}

	if ptype == cpr.Surface {
		ref, ok := t.surfaceReferencePoint(a)
		if !ok {
			return cpr.Position{}, false
		}
		return cpr.DecodeGlobalSurface(even.Frame, odd.Frame, ref)
	}
	return cpr.DecodeGlobalAirborne(even.Frame, odd.Frame)
}

// surfaceReferencePoint picks a reference point for resolving a
// surface-CPR quadrant ambiguity, in priority order: receiver-estimated
// location, last aircraft position, configured receiver location
// (spec.md §4.2 "for surface a reference point is needed").
func (t *Tracker) surfaceReferencePoint(a *aircraft.Aircraft) (cpr.Position, bool) {
	if t.Locator != nil {
		if lat, lon, ok := t.Locator.Current(); ok {
			return cpr.Position{Lat: lat, Lon: lon}, true
		}
	}
	if !a.LastPosition.IsZero() {
		return cpr.Position{Lat: a.Lat, Lon: a.Lon}, true
	}
	lat, lon := t.Config.GetReceiverLocation()
	if lat == 0 && lon == 0 {
		return cpr.Position{}, false
	}
	return cpr.Position{Lat: lat, Lon: lon}, true
}

// localReference picks a reference point for local CPR decode: the
// aircraft's own last position within localRefMaxAge is preferred, else
// the configured receiver location (spec.md §4.2 "Local").
func (t *Tracker) localReference(a *aircraft.Aircraft, ptype cpr.PositionType, now time.Time) (cpr.Position, bool) {
	if !a.LastPosition.IsZero() && now.Sub(a.LastPosition) <= localRefMaxAge {
		return cpr.Position{Lat: a.Lat, Lon: a.Lon}, true
	}
	lat, lon := t.Config.GetReceiverLocation()
	if lat == 0 && lon == 0 {
		return cpr.Position{}, false
	}
	return cpr.Position{Lat: lat, Lon: lon}, true
}

// localAcceptanceRangeMeters shrinks the receiver-range limit toward
// half a CPR cell width when no stricter max_range is configured
// (spec.md §4.2 "Local").
func (t *Tracker) localAcceptanceRangeMeters(lat float64, ptype cpr.PositionType) float64 {
	maxRange := t.Config.GetMaxRangeMeters()
	halfCell := cpr.HalfCellWidthMeters(lat, ptype)
	if maxRange <= 0 {
		return halfCell
	}
	if halfCell < maxRange {
		return halfCell
	}
	return maxRange
}

// acceptPosition runs the range/speed acceptance gates on a freshly
// decoded position and, if it passes, commits it and updates
// reliability counters, tile membership, and the trace.
func (t *Tracker) acceptPosition(a *aircraft.Aircraft, lat, lon float64, src message.Source, ts, now time.Time, surface bool, rangeOverride float64) {
	if a.LastPosition.IsZero() {
		t.commitPosition(a, lat, lon, src, ts, now, surface, true)
		return
	}

	distance := units.HaversineMeters(a.Lat, a.Lon, lat, lon)
	elapsed := ts.Sub(a.LastPosition)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	if isDuplicatePosition(a, lat, lon, ts) {
		a.Lat, a.Lon = lat, lon
		a.LastPosition = ts
		return
	}

	if src.Worse(message.ModeS) && elapsed < mlatPositionSkipWindow {
		return
	}

	maxRange := rangeOverride
	if maxRange <= 0 {
		maxRange = t.Config.GetMaxRangeMeters()
	}
	if maxRange > 0 && distance > maxRange {
		t.penalizePosition(a, false)
		return
	}

	if !speedGatePasses(a, lat, lon, distance, elapsed, src, surface) {
		t.penalizePosition(a, false)
		return
	}

	fastTrack := distance <= fastTrackRadiusMeters && elapsed >= fastTrackGap
	t.commitPosition(a, lat, lon, src, ts, now, surface, fastTrack)
}

// speedGatePasses implements spec.md §4.2's implied-speed plausibility
// check: straight-line speed between the last accepted position and the
// candidate must not exceed 1.3x the known groundspeed plus a 2kt/s
// freshness bonus (with a track-direction bonus clipped to 90 degrees
// off heading), subject to surface/airborne floor-and-ceiling overrides
// and a doubled allowance for MLAT-and-below sources.
func speedGatePasses(a *aircraft.Aircraft, lat, lon, distanceMeters float64, elapsed time.Duration, src message.Source, surface bool) bool {
	impliedKt := units.MetersPerSecondToKnots(distanceMeters / elapsed.Seconds())

	knownKt := airborneSpeedFloorKt
	if surface {
		knownKt = surfaceSpeedFloorKt
	}
	if !a.GroundSpeedKt.Zero() && !a.GroundSpeedKt.Stale {
		knownKt = a.GroundSpeedKt.Value
	}

	allowedKt := knownKt*speedAllowanceFactor + freshnessBonusKtPerS*elapsed.Seconds()

	if !a.Track.Zero() && !a.Track.Stale {
		bearing := units.InitialBearingDegrees(a.Lat, a.Lon, lat, lon)
		offset := units.AngleDiffDegrees(bearing, a.Track.Value)
		if offset < trackBonusMaxOffsetDeg {
			allowedKt += (trackBonusMaxOffsetDeg - offset) / trackBonusMaxOffsetDeg * knownKt * 0.3
		}
	}

	if surface {
		if allowedKt < surfaceSpeedFloorKt {
			allowedKt = surfaceSpeedFloorKt
		}
		if allowedKt > surfaceSpeedCeilKt {
			allowedKt = surfaceSpeedCeilKt
		}
	} else if allowedKt < airborneSpeedFloorKt {
		allowedKt = airborneSpeedFloorKt
	}

	if src.Worse(message.ModeS) {
		allowedKt *= 2
	}

	return impliedKt <= allowedKt
}

// isDuplicatePosition reports an identical position received again
// within duplicateWindow (spec.md §4.2 "Duplicate suppression").
func isDuplicatePosition(a *aircraft.Aircraft, lat, lon float64, ts time.Time) bool {
	if ts.Sub(a.LastPosition) > duplicateWindow {
		return false
	}
	return lat == a.Lat && lon == a.Lon
}

// penalizePosition decrements both reliability counters on a gate
// failure unless the address looks like a transient ID error, and
// invalidates the position once either counter reaches zero (spec.md
// §4.2 "Position acceptance").
func (t *Tracker) penalizePosition(a *aircraft.Aircraft, transientIDError bool) {
	if transientIDError {
		return
	}
	a.PosReliableOdd--
	a.PosReliableEven--
	if a.PosReliableOdd < 0 {
		a.PosReliableOdd = 0
	}
	if a.PosReliableEven < 0 {
		a.PosReliableEven = 0
	}
	if a.PosReliableOdd == 0 || a.PosReliableEven == 0 {
		a.LastPosition = time.Time{}
	}
}

// commitPosition stores the accepted position, grows the reliability
// counters toward the configured cap, updates tile membership, and
// triggers a trace append when warranted.
func (t *Tracker) commitPosition(a *aircraft.Aircraft, lat, lon float64, src message.Source, ts, now time.Time, surface bool, fastTrack bool) {
	a.Lat, a.Lon = lat, lon
	a.LastPosition = ts
	a.PositionState.Surface = surface
	a.PositionState.Source = src
	a.HadPosition = true
	a.PositionState.NIC = a.FusedScalars.NIC.Value
	a.PositionState.Rc = a.FusedScalars.Rc.Value

	persistCap := t.Config.GetFilterPersistence()
	grow := func(v *int) {
		if fastTrack {
			*v = t.Config.GetJSONReliable()
		} else {
			*v++
		}
		if *v > persistCap {
			*v = persistCap
		}
	}
	grow(&a.PosReliableOdd)
	grow(&a.PosReliableEven)

	reliable := a.PosReliableOdd >= t.Config.GetJSONReliable() && a.PosReliableEven >= t.Config.GetJSONReliable()
	if reliable {
		a.LatReliable, a.LonReliable = lat, lon
	}

	newTile := t.Tiles.Lookup(lat, lon)
	a.PositionState.TileIndex = newTile

	if tr, ok := a.TraceHandle.(*trace.Trace); ok && reliable {
		alt := a.FusedScalars.BaroAltFt.Value
		track := a.FusedScalars.Track.Value
		ground := a.GroundAir == aircraft.StateGround
		if tr.ShouldAppend(ts, lat, lon, alt, track, ground, t.Config.GetJSONTraceInterval(), fastTrackRadiusMeters) {
			point := trace.StatePoint{
				Lat:         lat,
				Lon:         lon,
				AltPacked:   trace.PackAltitude(int32(alt), ground, a.FusedScalars.BaroAltFt.Zero()),
				GSPacked:    int16(a.GroundSpeedKt.Value),
				TrackDeg:    track,
				RateFpm:     a.BaroRateFpm.Value,
				TimestampMS: ts.UnixMilli(),
			}
			snapshot := &trace.StateAll{
				Callsign:  a.Callsign.Value,
				Squawk:    a.Squawk.Value,
				GroundAir: a.GroundAir,
				NIC:       a.PositionState.NIC,
				Rc:        a.PositionState.Rc,
				NACp:      a.NACp.Value,
				Category:  a.Category.Value,
			}
			tr.Append(point, false, snapshot)
			a.TraceWrite = true
		}
	}
}
