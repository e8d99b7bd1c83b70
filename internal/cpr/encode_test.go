package cpr

import "math"

// encode re-derives the 17-bit CPR integers for a known position, used
// only by tests to build self-consistent odd/even pairs: production code
// only ever decodes frames received over the wire.
func encode(lat, lon float64, odd bool, t PositionType) Frame {
	latSpan := 360.0
	lonSpan := 360.0
	if t == Surface {
		latSpan = 90.0
		lonSpan = 90.0
	}
	dLat := latSpan / 60
	if odd {
		dLat = latSpan / 59
	}
	yz := math.Floor(cprResolution*(mod(lat, dLat)/dLat)+0.5)
	yz = mod(yz, cprResolution)
	rLat := dLat * (yz/cprResolution + math.Floor(lat/dLat))
	n := float64(nl(rLat))
	if odd {
		n = math.Max(n-1, 1)
	} else if n < 1 {
		n = 1
	}
	dLon := lonSpan / n
	xz := math.Floor(cprResolution*(mod(lon, dLon)/dLon)+0.5)
	xz = mod(xz, cprResolution)

	return Frame{Odd: odd, Lat: uint32(yz), Lon: uint32(xz), Type: t}
}
