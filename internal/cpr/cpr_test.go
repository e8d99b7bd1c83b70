package cpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeGlobalAirborneRoundTrip(t *testing.T) {
	// spec.md scenario 1 targets a position near (47.994N, 7.852E); encode
	// that position into a matching odd/even CPR pair and confirm the
	// global decode recovers it, the way it would for two real DF17
	// frames from the same aircraft.
	const wantLat, wantLon = 47.994, 7.852
	even := encode(wantLat, wantLon, false, Airborne)
	odd := encode(wantLat, wantLon, true, Airborne)

	pos, ok := DecodeGlobalAirborne(even, odd)
	assert.True(t, ok, "expected a successful global decode")
	assert.InDelta(t, wantLat, pos.Lat, 0.01)
	assert.InDelta(t, wantLon, pos.Lon, 0.01)
}

func TestDecodeGlobalAirborneRejectsSwappedParity(t *testing.T) {
	// Passing two even frames (or two odd frames) must fail cleanly.
	a := Frame{Odd: false, Lat: 74158, Lon: 50194, Type: Airborne}
	b := Frame{Odd: false, Lat: 93000, Lon: 51372, Type: Airborne}
	_, ok := DecodeGlobalAirborne(a, b)
	assert.False(t, ok)
}

func TestDecodeLocalNearReference(t *testing.T) {
	const wantLat, wantLon = 47.994, 7.852
	even := encode(wantLat, wantLon, false, Airborne)
	ref := Position{Lat: 48.0, Lon: 8.0}

	pos := DecodeLocal(even, ref)
	assert.InDelta(t, wantLat, pos.Lat, 0.01)
	assert.InDelta(t, wantLon, pos.Lon, 0.01)
}

func TestDecodeLocalSurface(t *testing.T) {
	const wantLat, wantLon = 33.94, -118.41 // LAX-ish
	odd := encode(wantLat, wantLon, true, Surface)
	ref := Position{Lat: 33.95, Lon: -118.40}

	pos := DecodeLocal(odd, ref)
	assert.InDelta(t, wantLat, pos.Lat, 0.01)
	assert.InDelta(t, wantLon, pos.Lon, 0.01)
}

func TestDecodeGlobalSurfaceRoundTrip(t *testing.T) {
	const wantLat, wantLon = 33.94, -118.41 // LAX-ish, west of the prime meridian
	even := encode(wantLat, wantLon, false, Surface)
	odd := encode(wantLat, wantLon, true, Surface)
	ref := Position{Lat: 33.95, Lon: -118.40}

	pos, ok := DecodeGlobalSurface(even, odd, ref)
	assert.True(t, ok)
	assert.InDelta(t, wantLat, pos.Lat, 0.01)
	assert.InDelta(t, wantLon, pos.Lon, 0.01)
}

func TestResolveSurfaceQuadrantPicksNearestReference(t *testing.T) {
	raw := Position{Lat: 10, Lon: 10}
	ref := Position{Lat: 10, Lon: 100}
	resolved := resolveSurfaceQuadrant(raw, ref)
	assert.InDelta(t, 100.0, resolved.Lon, 90.0)
}

func TestDistanceMetersZeroForSamePoint(t *testing.T) {
	p := Position{Lat: 10, Lon: 10}
	assert.Equal(t, 0.0, DistanceMeters(p, p))
}

func TestDistanceMetersKnownSpan(t *testing.T) {
	// Roughly one degree of latitude is ~111km.
	a := Position{Lat: 0, Lon: 0}
	b := Position{Lat: 1, Lon: 0}
	d := DistanceMeters(a, b)
	assert.InDelta(t, 111195, d, 1000)
}

func TestHalfCellWidthMetersPositiveAtEquatorAndHighLatitude(t *testing.T) {
	equator := HalfCellWidthMeters(0, Airborne)
	highLat := HalfCellWidthMeters(80, Airborne)
	assert.Greater(t, equator, 0.0)
	assert.Greater(t, highLat, 0.0)
}
