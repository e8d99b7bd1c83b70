package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"testing"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/config"
	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/flightdeck/trackerd/internal/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setValidity[T any](v *message.ValidityRecord[T], val T, now time.Time) {
	v.Set(val, message.ADSB, now)
	v.RefreshStale(now, time.Hour)
}

func TestBuildAircraftDocOmitsUnsetFields(t *testing.T) {
	now := time.Now()
	a := aircraft.New(aircraft.Key{Addr: 0x4b1803}, now)
	doc := BuildAircraftDoc(a, now)

	assert.Equal(t, "4b1803", doc.Hex)
	assert.Nil(t, doc.Lat)
	assert.Nil(t, doc.BaroAltFt)
	assert.Equal(t, "invalid", doc.GroundAir)
}

func TestBuildAircraftDocIncludesFusedFields(t *testing.T) {
	now := time.Now()
	a := aircraft.New(aircraft.Key{Addr: 0x4b1803}, now)
	setValidity(&a.Callsign, "TEST123", now)
	setValidity(&a.BaroAltFt, 10000.0, now)
	a.Lat, a.Lon = 51.5, -0.1
	a.LastPosition = now

	doc := BuildAircraftDoc(a, now)
	assert.Equal(t, "TEST123", doc.Callsign)
	require.NotNil(t, doc.BaroAltFt)
	assert.Equal(t, 10000.0, *doc.BaroAltFt)
	require.NotNil(t, doc.Lat)
	assert.Equal(t, 51.5, *doc.Lat)
}

func TestSkipFromAircraftJSONHonorsJaeroCarveOut(t *testing.T) {
	cfg := config.DefaultTrackerConfig()
	now := time.Now()
	stale := now.Add(-cfg.GetTrackExpire())

	a := aircraft.New(aircraft.Key{Addr: 0x4b1803}, stale)
	a.LastMessage = stale
	assert.True(t, skipFromAircraftJSON(a, now, cfg), "stale with no position must be skipped")

	a.LastPosition = now.Add(-time.Second)
	a.PositionState.Source = message.Jaero
	assert.False(t, skipFromAircraftJSON(a, now, cfg), "recent JAERO position must override staleness")
}

func TestWriteAircraftJSONSkipsStaleAndWritesLive(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	now := time.Now()

	live, _ := reg.GetOrCreate(aircraft.Key{Addr: 0x000001}, now)
	live.LastMessage = now

	stale, _ := reg.GetOrCreate(aircraft.Key{Addr: 0x000002}, now)
	stale.LastMessage = now.Add(-cfg.GetTrackExpire() * 2)

	require.NoError(t, WriteAircraftJSON(fs, "/json", reg, cfg, now, 42))

	data, err := fs.ReadFile("/json/aircraft.json")
	require.NoError(t, err)

	var file AircraftFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, int64(42), file.Messages)
	require.Len(t, file.Aircraft, 1)
	assert.Equal(t, "000001", file.Aircraft[0].Hex)
}

func TestWriteGlobeTilesGroupsByTileIndex(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	now := time.Now()

	a, _ := reg.GetOrCreate(aircraft.Key{Addr: 0x000001}, now)
	a.Lat, a.Lon = 51.5, -0.1
	a.LastPosition = now
	a.PositionState.TileIndex = 7

	require.NoError(t, WriteGlobeTiles(fs, "/json", reg, now))

	jsonData, err := fs.ReadFile("/json/globe_7.json")
	require.NoError(t, err)
	var file GlobeFile
	require.NoError(t, json.Unmarshal(jsonData, &file))
	assert.Equal(t, 7, file.TileIndex)
	require.Len(t, file.Aircraft, 1)

	binData, err := fs.ReadFile("/json/globe_7.bin")
	require.NoError(t, err)
	assert.True(t, len(binData) > binHeaderSize, "binary file must contain at least the header plus one record")
}

func TestWriteVRSPartMergesAcrossCalls(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	now := time.Now()

	a0, _ := reg.GetOrCreate(aircraft.Key{Addr: 0}, now) // addr%16==0
	a0.Lat, a0.Lon = 1, 2
	a0.LastPosition = now

	a1, _ := reg.GetOrCreate(aircraft.Key{Addr: 1}, now) // addr%16==1
	a1.Lat, a1.Lon = 3, 4
	a1.LastPosition = now

	require.NoError(t, WriteVRSPart(fs, "/json", reg, now, 0))
	data, err := fs.ReadFile("/json/vrs.json")
	require.NoError(t, err)
	var file VRSFile
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Len(t, file.Aircraft, 1, "only part 0's aircraft should be present after one call")

	require.NoError(t, WriteVRSPart(fs, "/json", reg, now, 1))
	data, err = fs.ReadFile("/json/vrs.json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Len(t, file.Aircraft, 2, "merging part 1 must keep part 0's aircraft")
}

func TestParseSquawkRoundTrip(t *testing.T) {
	v, err := parseSquawk("7700")
	require.NoError(t, err)
	assert.Equal(t, uint16(0o7700), v)

	_, err = parseSquawk("89ab")
	assert.Error(t, err)
}

func TestWriteStatsWritesPayload(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, WriteStats(fs, "/json", []byte(`{"ok":true}`)))
	data, err := fs.ReadFile("/json/stats.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
}

func TestWriteStateBlobShardOnlyIncludesMatchingAddresses(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := config.DefaultTrackerConfig()
	reg := aircraft.NewRegistry(cfg)
	now := time.Now()

	// Addr 1 hashes to shard 1, addr 257 (0x101) also hashes to shard 1.
	a1, _ := reg.GetOrCreate(aircraft.Key{Addr: 1}, now)
	a1.LastMessage = now
	a2, _ := reg.GetOrCreate(aircraft.Key{Addr: 257}, now)
	a2.LastMessage = now
	a3, _ := reg.GetOrCreate(aircraft.Key{Addr: 2}, now)
	a3.LastMessage = now

	require.NoError(t, WriteStateBlobShard(fs, "/state", reg, 1, now))

	data, err := fs.ReadFile(stateBlobPath("/state", 1))
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	var blob stateBlob
	require.NoError(t, gob.NewDecoder(gz).Decode(&blob))

	assert.Len(t, blob.Aircraft, 2)
	hexes := map[string]bool{}
	for _, doc := range blob.Aircraft {
		hexes[doc.Hex] = true
	}
	assert.True(t, hexes["000001"])
	assert.True(t, hexes["000101"])
}
