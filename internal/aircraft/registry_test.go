package aircraft

import (
	"testing"
	"time"

	"github.com/flightdeck/trackerd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry(&config.TrackerConfig{})
	now := time.Now()
	key := Key{Addr: 0xABCDEF}

	a, created := r.GetOrCreate(key, now)
	require.True(t, created)
	require.NotNil(t, a)

	a2, created2 := r.GetOrCreate(key, now)
	assert.False(t, created2)
	assert.Same(t, a, a2)

	assert.Equal(t, 1, r.Len())
}

func TestRegistryDelete(t *testing.T) {
	r := NewRegistry(&config.TrackerConfig{})
	key := Key{Addr: 1}
	r.GetOrCreate(key, time.Now())
	require.Equal(t, 1, r.Len())

	r.Delete(key)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Get(key))
}

func TestRegistryDistributesAcrossShards(t *testing.T) {
	r := NewRegistry(&config.TrackerConfig{})
	now := time.Now()
	for i := uint32(0); i < 64; i++ {
		r.GetOrCreate(Key{Addr: i}, now)
	}
	seen := map[int]bool{}
	r.ForEachShard(func(idx int, as []*Aircraft) {
		if len(as) > 0 {
			seen[idx] = true
		}
	})
	assert.Greater(t, len(seen), 1, "expected aircraft to spread across more than one shard")
}

func TestRegistryRemoveExpiredNoPosition(t *testing.T) {
	cfg := &config.TrackerConfig{}
	r := NewRegistry(cfg)
	now := time.Now()
	key := Key{Addr: 42}
	a, _ := r.GetOrCreate(key, now)
	a.LastMessage = now.Add(-10 * time.Minute)

	removed := r.RemoveExpired(now)
	assert.Contains(t, removed, key)
	assert.Nil(t, r.Get(key))
}

func TestRegistryRemoveExpiredKeepsFreshAircraft(t *testing.T) {
	cfg := &config.TrackerConfig{}
	r := NewRegistry(cfg)
	now := time.Now()
	key := Key{Addr: 7}
	a, _ := r.GetOrCreate(key, now)
	a.LastMessage = now

	removed := r.RemoveExpired(now)
	assert.Empty(t, removed)
	assert.NotNil(t, r.Get(key))
}

func TestRegistryRemoveExpiredWithPositionUsesLongerTimeout(t *testing.T) {
	cfg := &config.TrackerConfig{}
	r := NewRegistry(cfg)
	now := time.Now()
	key := Key{Addr: 99}
	a, _ := r.GetOrCreate(key, now)
	a.HadPosition = true
	a.LastMessage = now.Add(-10 * time.Minute)
	a.LastPosition = now.Add(-10 * time.Minute)

	removed := r.RemoveExpired(now)
	assert.Empty(t, removed, "an aircraft with a position should survive the no-position timeout")
}
