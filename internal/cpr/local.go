package cpr

import "math"

// DecodeLocal resolves a single CPR frame against a known reference
// point, valid only as long as the reference is within half a cell
// width of the true position (spec.md §4.2 "Local"). The caller
// (tracker) is responsible for picking the reference per its priority
// order and for the receiver-range shrink-toward-half-cell limit.
func DecodeLocal(f Frame, ref Position) Position {
	dLatEven, dLatOdd := airborneLatSpanEven, airborneLatSpanOdd
	lonSpan := 360.0
	if f.Type == Surface {
		dLatEven, dLatOdd = surfaceLatSpanEven, surfaceLatSpanOdd
		lonSpan = 90.0
	}

	dLat := dLatEven
	if f.Odd {
		dLat = dLatOdd
	}
	latCPR := float64(f.Lat) / cprResolution
	lonCPR := float64(f.Lon) / cprResolution

	j := math.Floor(ref.Lat/dLat) + math.Floor(0.5+mod(ref.Lat, dLat)/dLat-latCPR)
	lat := dLat * (j + latCPR)

	n := float64(nl(lat))
	if f.Odd {
		n = math.Max(n-1, 1)
	}
	if n < 1 {
		n = 1
	}
	dLon := lonSpan / n

	m := math.Floor(ref.Lon/dLon) + math.Floor(0.5+mod(ref.Lon, dLon)/dLon-lonCPR)
	lon := dLon * (m + lonCPR)

	return Position{Lat: lat, Lon: lon}
}

// HalfCellWidthMeters estimates half the width (in meters) of the CPR
// cell that applies at lat for the given PositionType, used by the
// tracker to shrink its local-decode acceptance range toward the cell
// size when no stricter max_range is configured (spec.md §4.2).
func HalfCellWidthMeters(lat float64, t PositionType) float64 {
	lonSpan := 360.0
	if t == Surface {
		lonSpan = 90.0
	}
	n := float64(nl(lat))
	if n < 1 {
		n = 1
	}
	dLon := lonSpan / n
	const metersPerDegreeLat = 111320.0
	metersPerDegreeLon := metersPerDegreeLat * math.Cos(lat*math.Pi/180)
	if metersPerDegreeLon < 1 {
		metersPerDegreeLon = 1
	}
	return (dLon * metersPerDegreeLon) / 2
}
