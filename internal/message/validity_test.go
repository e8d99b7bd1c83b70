package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidityRecordZero(t *testing.T) {
	var v ValidityRecord[float64]
	assert.True(t, v.Zero())
	v.Set(100, ModeS, time.Now())
	assert.False(t, v.Zero())
}

func TestValidityRecordAcceptHigherSourceAlwaysWins(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	v.Set(1000, ModeS, now)

	accepted := v.Accept(ADSB, now.Add(time.Second), now.Add(time.Second), DefaultStaleAfter)
	require.True(t, accepted)
	v.Set(2000, ADSB, now.Add(time.Second))
	assert.Equal(t, ADSB, v.Source)
	assert.Equal(t, ADSB, v.LastSource)
}

func TestValidityRecordAcceptRejectsLowerSourceWhileFresh(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	v.Set(1000, ADSB, now)

	accepted := v.Accept(MLAT, now.Add(5*time.Second), now.Add(5*time.Second), DefaultStaleAfter)
	assert.False(t, accepted, "a lower-priority source must not overwrite a fresh higher one")
}

func TestValidityRecordAcceptAllowsLowerSourceOnceStale(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	v.Set(1000, ADSB, now)

	later := now.Add(2 * time.Minute)
	accepted := v.Accept(MLAT, later, later, DefaultStaleAfter)
	assert.True(t, accepted, "a lower-priority source may overwrite once the current value has gone stale")
}

func TestValidityRecordAcceptRejectsInvalidSource(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	assert.False(t, v.Accept(Invalid, now, now, DefaultStaleAfter))
}

func TestValidityRecordAcceptRejectsOlderTimestamp(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	v.Set(1000, ModeS, now)

	assert.False(t, v.Accept(ADSB, now.Add(-time.Second), now, DefaultStaleAfter))
}

func TestValidityRecordLastSourceNeverDowngrades(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	v.Set(1000, ADSB, now)
	assert.Equal(t, ADSB, v.LastSource)

	later := now.Add(2 * time.Minute)
	v.Set(900, MLAT, later)
	assert.Equal(t, MLAT, v.Source)
	assert.Equal(t, ADSB, v.LastSource, "LastSource must never downgrade")
}

func TestValidityRecordReduceForwardEligibleFirstUpdateIsEligible(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	assert.True(t, v.ReduceForwardEligible(now, 5*time.Second), "a field with no prior schedule is eligible immediately")
}

func TestValidityRecordReduceForwardEligibleThrottlesWithinInterval(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	require.True(t, v.ReduceForwardEligible(now, 5*time.Second))

	assert.False(t, v.ReduceForwardEligible(now.Add(3*time.Second), 5*time.Second), "a second update within the interval must not be eligible again")
	assert.True(t, v.ReduceForwardEligible(now.Add(5*time.Second), 5*time.Second), "reaching the scheduled deadline makes it eligible again")
}

func TestValidityRecordRefreshStale(t *testing.T) {
	now := time.Now()
	var v ValidityRecord[float64]
	v.RefreshStale(now, DefaultStaleAfter)
	assert.True(t, v.Stale, "a never-updated record is always stale")

	v.Set(1000, ModeS, now)
	v.RefreshStale(now, DefaultStaleAfter)
	assert.False(t, v.Stale)

	v.RefreshStale(now.Add(61*time.Second), DefaultStaleAfter)
	assert.True(t, v.Stale)
}
