package geoindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupFallsBackToUniformGrid(t *testing.T) {
	idx := New(nil)
	id := idx.Lookup(0, 0)
	assert.GreaterOrEqual(t, id, specialReserved)
}

func TestLookupFirstMatchingRectWins(t *testing.T) {
	idx := New([]Rect{
		{Name: "a", South: -90, West: -180, North: 90, East: 180},
		{Name: "b", South: -90, West: -180, North: 90, East: 180},
	})
	assert.Equal(t, 0, idx.Lookup(10, 10))
}

func TestLookupAntimeridianWrap(t *testing.T) {
	idx := New([]Rect{{Name: "pacific", South: -10, West: 170, North: 10, East: -170}})
	assert.Equal(t, 0, idx.Lookup(0, 175))
	assert.Equal(t, 0, idx.Lookup(0, -175))
	assert.GreaterOrEqual(t, idx.Lookup(0, 0), specialReserved)
}

func TestGridRoundTrip(t *testing.T) {
	idx := New(nil)
	id := idx.Lookup(47.5, 7.5)
	row, col, ok := Inverse(id)
	assert.True(t, ok)

	rederived := row*LatMult + col + specialReserved
	assert.Equal(t, id, rederived, "globe_index_index(globe_index(lat,lon)) must round-trip to the same id")
}

func TestInverseRejectsSpecialRectIDs(t *testing.T) {
	_, _, ok := Inverse(5)
	assert.False(t, ok)
}

func TestLookupOutOfRangeRectMiss(t *testing.T) {
	idx := New([]Rect{{Name: "tiny", South: 80, West: 0, North: 85, East: 1}})
	id := idx.Lookup(0, 0)
	assert.GreaterOrEqual(t, id, specialReserved)
}
