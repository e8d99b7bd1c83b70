package trace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLegDetectorFirstObservationIsNotANewLeg(t *testing.T) {
	d := NewLegDetector()
	assert.False(t, d.Observe(time.Now(), 1, false))
}

func TestLegDetectorSplitsOnLargeGap(t *testing.T) {
	d := NewLegDetector()
	t0 := time.Now()
	d.Observe(t0, 1, false)
	assert.True(t, d.Observe(t0.Add(45*time.Minute), 1, false))
}

func TestLegDetectorSplitsOnGroundAirChange(t *testing.T) {
	d := NewLegDetector()
	t0 := time.Now()
	d.Observe(t0, 1, false)
	assert.True(t, d.Observe(t0.Add(time.Second), 2, false))
}

func TestLegDetectorSplitsOnLongGroundStreak(t *testing.T) {
	d := NewLegDetector()
	t0 := time.Now()
	d.Observe(t0, 1, true)
	assert.False(t, d.Observe(t0.Add(10*time.Minute), 1, true))
	assert.True(t, d.Observe(t0.Add(30*time.Minute), 1, true))
}

func TestLegDetectorAirborneDoesNotAccumulateGroundStreak(t *testing.T) {
	d := NewLegDetector()
	t0 := time.Now()
	d.Observe(t0, 1, false)
	assert.False(t, d.Observe(t0.Add(20*time.Minute), 1, false))
}
