package trace

import (
	"testing"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(t0 time.Time, lat, lon, alt, track float64) StatePoint {
	return StatePoint{Lat: lat, Lon: lon, AltPacked: PackAltitude(int32(alt), false, false), TrackDeg: track, TimestampMS: t0.UnixMilli()}
}

func TestShouldAppendAlwaysTrueWhenEmpty(t *testing.T) {
	tr := New(10)
	assert.True(t, tr.ShouldAppend(time.Now(), 1, 1, 1000, 90, false, time.Second, 0))
}

func TestShouldAppendOnElapsedInterval(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 1000, 90), false, nil)

	later := t0.Add(2 * time.Second)
	assert.True(t, tr.ShouldAppend(later, 1, 1, 1000, 90, false, time.Second, 0))
}

func TestShouldAppendNotYetDueWithoutChange(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 1000, 90), false, nil)

	soon := t0.Add(100 * time.Millisecond)
	assert.False(t, tr.ShouldAppend(soon, 1, 1, 1000, 90, false, time.Second, 0))
}

func TestShouldAppendOnTrackChange(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 1000, 90), false, nil)

	soon := t0.Add(100 * time.Millisecond)
	assert.True(t, tr.ShouldAppend(soon, 1, 1, 1000, 95, false, time.Second, 0))
}

func TestShouldAppendOnAltitudeChange(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 1000, 90), false, nil)

	soon := t0.Add(100 * time.Millisecond)
	assert.True(t, tr.ShouldAppend(soon, 1, 1, 1500, 90, false, time.Second, 0))
}

func TestShouldAppendOnPositionJump(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 1000, 90), false, nil)

	soon := t0.Add(100 * time.Millisecond)
	assert.True(t, tr.ShouldAppend(soon, 50, 50, 1000, 90, false, time.Second, 1000))
}

func TestAppendEvictsOldestAtCapacity(t *testing.T) {
	tr := New(2)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 1000, 90), false, nil)
	tr.Append(point(t0.Add(time.Second), 2, 2, 1000, 90), false, nil)
	tr.Append(point(t0.Add(2*time.Second), 3, 3, 1000, 90), false, nil)

	require.Len(t, tr.Points, 2)
	assert.Equal(t, 2.0, tr.Points[0].Lat)
	assert.Equal(t, 3.0, tr.Points[1].Lat)
}

func TestAppendCapturesStateAllEveryFourth(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	for i := 0; i < 5; i++ {
		snap := &StateAll{Callsign: "TEST123"}
		tr.Append(point(t0.Add(time.Duration(i)*time.Second), 1, 1, 1000, 90), false, snap)
	}
	require.Len(t, tr.All, 5)
	assert.NotNil(t, tr.All[0])
	assert.Nil(t, tr.All[1])
	assert.Nil(t, tr.All[2])
	assert.Nil(t, tr.All[3])
	assert.NotNil(t, tr.All[4])
}

func TestLegMarkerRoundTrip(t *testing.T) {
	p := point(time.Now(), 1, 1, 35000, 90)
	assert.False(t, p.LegMarker())
	marked := p.WithLegMarker()
	assert.True(t, marked.LegMarker())
	assert.Equal(t, int32(35000), marked.AltitudeFt())
}

func TestWriteCountIncrementsPerAppend(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 1000, 90), false, nil)
	tr.Append(point(t0.Add(time.Second), 1, 1, 1000, 90), false, nil)
	assert.Equal(t, 2, tr.WriteCount())
}

func TestShouldAppendOnGroundAirChange(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 1, 1, 0, 90), false, &StateAll{GroundAir: aircraft.StateGround})

	soon := t0.Add(100 * time.Millisecond)
	assert.True(t, tr.ShouldAppend(soon, 1, 1, 0, 90, false, time.Second, 0))
}
