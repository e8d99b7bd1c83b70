package trace

import (
	"testing"
	"time"

	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	tr := New(10)
	t0 := time.Now()
	tr.Append(point(t0, 47.5, 7.5, 35000, 270), true, &StateAll{Callsign: "SWR123"})
	tr.Append(point(t0.Add(time.Second), 47.6, 7.6, 35100, 271), false, nil)

	data, err := serialize(tr)
	require.NoError(t, err)

	back, err := deserialize(data)
	require.NoError(t, err)
	require.Len(t, back.Points, 2)
	assert.Equal(t, 47.5, back.Points[0].Lat)
	assert.True(t, back.Points[0].LegMarker())
	require.Len(t, back.All, 2)
	require.NotNil(t, back.All[0])
	assert.Equal(t, "SWR123", back.All[0].Callsign)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	tr := New(10)
	tr.Append(point(time.Now(), 1, 2, 1000, 45), false, nil)

	require.NoError(t, Save(fs, "/state", "a1b2c3", tr))

	back, err := Load(fs, "/state", "a1b2c3")
	require.NoError(t, err)
	require.Len(t, back.Points, 1)
	assert.Equal(t, 1.0, back.Points[0].Lat)
}

func TestLoadMissingReturnsError(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	_, err := Load(fs, "/state", "ffffff")
	assert.Error(t, err)
}

func TestFitsCapacity(t *testing.T) {
	tr := New(0)
	tr.Points = make([]StatePoint, 5)
	assert.True(t, FitsCapacity(tr, 0))
	assert.True(t, FitsCapacity(tr, 10))
	assert.False(t, FitsCapacity(tr, 4))
}

func TestAircraftDirBucketsByLowByte(t *testing.T) {
	dir := aircraftDir("/state", "abcdef")
	assert.Equal(t, "/state/internal_state/ef", dir)
}
