// Package cpr implements the Compact Position Reporting decode used by
// ADS-B/Mode-S extended squitter position messages: global decode from a
// paired odd/even frame, and local decode of a single frame against a
// known reference point. Airborne and surface variants differ only in
// their zone count and longitude handling (spec.md §4.2 "CPR position
// decoding").
//
// This is treated as a self-contained library (spec.md §2): the
// algorithm is fixed by the Mode-S standard, not by application policy,
// so it has no dependency on the message/aircraft/tracker packages.
package cpr

import "math"

// Frame is one encoded CPR position report: a 17-bit latitude and
// longitude pair, tagged odd/even, for a given PositionType.
type Frame struct {
	Odd  bool
	Lat  uint32 // 17-bit encoded latitude
	Lon  uint32 // 17-bit encoded longitude
	Type PositionType
}

// PositionType distinguishes the airborne and surface CPR formats,
// which use different zone counts (NZ) and surface additionally
// requires a reference point to resolve its quadrant ambiguity.
type PositionType int

const (
	Airborne PositionType = iota
	Surface
)

const (
	nz            = 15      // zones per pole, per the Mode-S/ADS-B standard
	cprResolution = 131072.0 // 2^17

	airborneLatSpanEven = 360.0 / 60.0 // dLatEven for airborne = 6 degrees
	airborneLatSpanOdd  = 360.0 / 59.0 // dLatOdd for airborne
	surfaceLatSpanEven  = 90.0 / 60.0  // surface spans a quarter of the globe
	surfaceLatSpanOdd   = 90.0 / 59.0
)

// Position is a decoded geographic point.
type Position struct {
	Lat float64
	Lon float64
}

func nl(lat float64) int {
	if lat == 0 {
		return 59
	}
	if lat == 90 || lat == -90 {
		return 1
	}
	a := math.Abs(lat)
	v := math.Acos(1 - (1-math.Cos(math.Pi/2/float64(nz)))/
		(math.Cos(a*math.Pi/180)*math.Cos(a*math.Pi/180)))
	n := int(math.Floor(2 * math.Pi / v))
	if n < 1 {
		n = 1
	}
	return n
}

func mod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	return m
}

// DecodeGlobalAirborne decodes a paired odd/even airborne CPR frame into
// an unambiguous position. even and odd must be the two most-recently
// received frames of type Airborne; the caller (the tracker) is
// responsible for their freshness/age-gap checks (spec.md §3
// Invariants).
func DecodeGlobalAirborne(even, odd Frame) (Position, bool) {
	return decodeGlobal(even, odd, airborneLatSpanEven, airborneLatSpanOdd, 360.0)
}

// DecodeGlobalSurface decodes a paired odd/even surface CPR frame. A
// surface decode is inherently ambiguous across four candidate
// quadrants; ref narrows it to the one nearest the reference point
// (spec.md §4.2 "for surface a reference point is needed").
func DecodeGlobalSurface(even, odd Frame, ref Position) (Position, bool) {
	pos, ok := decodeGlobal(even, odd, surfaceLatSpanEven, surfaceLatSpanOdd, 90.0)
	if !ok {
		return Position{}, false
	}
	return resolveSurfaceQuadrant(pos, ref), true
}

func decodeGlobal(even, odd Frame, dLatEven, dLatOdd, lonSpan float64) (Position, bool) {
	if even.Odd || !odd.Odd {
		return Position{}, false
	}
	latEvenCPR := float64(even.Lat) / cprResolution
	latOddCPR := float64(odd.Lat) / cprResolution
	lonEvenCPR := float64(even.Lon) / cprResolution
	lonOddCPR := float64(odd.Lon) / cprResolution

	j := math.Floor(59*latEvenCPR - 60*latOddCPR + 0.5)

	latEven := dLatEven * (mod(j, 60) + latEvenCPR)
	latOdd := dLatOdd * (mod(j, 59) + latOddCPR)
	if latEven >= 270 {
		latEven -= 360
	}
	if latOdd >= 270 {
		latOdd -= 360
	}

	if even.Type != odd.Type {
		return Position{}, false
	}

	nlEven := nl(latEven)
	nlOdd := nl(latOdd)
	if nlEven != nlOdd {
		// Even/odd straddle a latitude zone boundary; no unambiguous
		// global position exists for this pair.
		return Position{}, false
	}

	// The odd frame is conventionally the more recent of the pair
	// (spec.md §4.2 "fresh odd and even CPR frames"); callers pass
	// whichever frame they want treated as most-recent as odd.
	lat := latOdd
	nlLat := float64(nl(lat))
	ni := math.Max(nlLat-1, 1)
	m := math.Floor(lonEvenCPR*(nlLat-1) - lonOddCPR*nlLat + 0.5)
	lon := (lonSpan / ni) * (mod(m, ni) + lonOddCPR)
	if lon > 180 {
		lon -= 360
	}

	return Position{Lat: lat, Lon: lon}, true
}

func resolveSurfaceQuadrant(pos Position, ref Position) Position {
	best := pos
	bestDist := math.MaxFloat64
	for _, dLat := range []float64{0, 90, -90, 180, -180} {
		for _, dLon := range []float64{0, 90, -90, 180, -180} {
			cand := Position{Lat: pos.Lat + dLat, Lon: pos.Lon + dLon}
			if cand.Lat > 90 || cand.Lat < -90 {
				continue
			}
			d := haversine(cand, ref)
			if d < bestDist {
				bestDist = d
				best = cand
			}
		}
	}
	return best
}

func haversine(a, b Position) float64 {
	const earthRadiusM = 6371000.0
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// DistanceMeters is the great-circle distance between two positions,
// exported for the tracker's range/speed plausibility checks (spec.md
// §4.2).
func DistanceMeters(a, b Position) float64 { return haversine(a, b) }
