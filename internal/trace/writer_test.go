package trace

import (
	"testing"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachOrCreateCreatesFreshWhenNothingPersisted(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	a := aircraft.New(aircraft.Key{Addr: 0x4b1803}, time.Now())

	tr := AttachOrCreate(a, fs, "/state", 100)
	require.NotNil(t, tr)
	assert.Equal(t, 100, tr.Capacity)
	assert.Same(t, tr, a.TraceHandle)
}

func TestAttachOrCreateRestoresPersisted(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	saved := New(100)
	saved.Append(point(time.Now(), 10, 20, 5000, 180), false, nil)
	require.NoError(t, Save(fs, "/state", "4b1803", saved))

	a := aircraft.New(aircraft.Key{Addr: 0x4b1803}, time.Now())
	tr := AttachOrCreate(a, fs, "/state", 100)
	require.Len(t, tr.Points, 1)
	assert.Equal(t, 10.0, tr.Points[0].Lat)
}

func TestAttachOrCreateDiscardsOversizedPersisted(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	saved := New(0)
	for i := 0; i < 5; i++ {
		saved.Append(point(time.Now().Add(time.Duration(i)*time.Second), 1, 1, 1000, 90), false, nil)
	}
	require.NoError(t, Save(fs, "/state", "4b1803", saved))

	a := aircraft.New(aircraft.Key{Addr: 0x4b1803}, time.Now())
	tr := AttachOrCreate(a, fs, "/state", 2)
	assert.Empty(t, tr.Points)
}

func TestWriterPoolSweepSlicePersistsFlaggedAircraft(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	reg := aircraft.NewRegistry(config.DefaultTrackerConfig())
	a, _ := reg.GetOrCreate(aircraft.Key{Addr: 0x000040}, time.Now())
	tr := AttachOrCreate(a, fs, "/state", 100)
	tr.Append(point(time.Now(), 1, 1, 1000, 90), false, nil)
	a.TraceWrite = true

	pool := NewWriterPool(reg, fs, "/state", "/public", "/history", 100)
	shard := 0
	for i := 0; i < reg.ShardCount(); i++ {
		for _, candidate := range reg.Snapshot(i) {
			if candidate == a {
				shard = i
			}
		}
	}
	pool.sweepSlice(shard, int(a.Addr)%sliceCount)

	assert.False(t, a.TraceWrite)
	_, err := Load(fs, "/state", "000040")
	assert.NoError(t, err)
}

func TestWriterPoolSweepSliceSkipsUnflagged(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	reg := aircraft.NewRegistry(config.DefaultTrackerConfig())
	a, _ := reg.GetOrCreate(aircraft.Key{Addr: 0x000041}, time.Now())
	AttachOrCreate(a, fs, "/state", 100)

	pool := NewWriterPool(reg, fs, "/state", "/public", "/history", 100)
	for i := 0; i < reg.ShardCount(); i++ {
		pool.sweepSlice(i, int(a.Addr)%sliceCount)
	}

	_, err := Load(fs, "/state", "000041")
	assert.Error(t, err)
}
