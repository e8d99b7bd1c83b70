package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
)

// GlobeFile is the JSON shape of one globe_<tile>.json document
// (spec.md §4.5): the aircraft currently listed in that tile.
type GlobeFile struct {
	Now       float64       `json:"now"`
	TileIndex int           `json:"tile"`
	Aircraft  []AircraftDoc `json:"aircraft"`
}

// binHeaderSize is the fixed 40-byte per-tile binary header (spec.md
// §4.5 "Binary per-tile snapshot"): now, element size, positional
// aircraft count, tile index, and a float32 bounding box, padded to 40
// bytes.
const binHeaderSize = 40

// binHeader is serialized with encoding/binary, field by field, with no
// implicit padding.
type binHeader struct {
	NowMS     int64
	ElemSize  uint32
	Count     uint32
	TileIndex int32
	South     float32
	West      float32
	North     float32
	East      float32
	Reserved  uint32
}

// binCraftRecord is the fixed-size per-aircraft binary record packed
// into globe_<tile>.bin (spec.md §4.5 "a fixed-size BinCraft record for
// compactness"). Angles are fixed-point (x1e5 for lat/lon, x100 for
// track) to keep every field an integer width.
type binCraftRecord struct {
	Addr       uint32
	LatE5      int32
	LonE5      int32
	AltFt      int32
	GSKt       int16
	TrackCE2   int16
	BaroRateFpm int16
	Squawk     uint16
	NIC        uint8
	Category   uint8
	Flags      uint8
	_          uint8 // reserved, keeps the record 4-byte aligned
}

const (
	binFlagGround     = 1 << 0
	binFlagAltUnknown = 1 << 1
	binFlagReliable   = 1 << 2
)

func toBinCraft(a *aircraft.Aircraft) binCraftRecord {
	rec := binCraftRecord{
		Addr:     a.Addr,
		Category: categoryByte(a.Category.Value),
	}
	if !a.LastPosition.IsZero() {
		rec.LatE5 = int32(math.Round(a.Lat * 1e5))
		rec.LonE5 = int32(math.Round(a.Lon * 1e5))
		if a.PositionState.PosReliableOdd > 0 && a.PositionState.PosReliableEven > 0 {
			rec.Flags |= binFlagReliable
		}
	}
	if !a.BaroAltFt.Zero() && !a.BaroAltFt.Stale {
		rec.AltFt = int32(a.BaroAltFt.Value)
	} else {
		rec.Flags |= binFlagAltUnknown
	}
	if a.GroundAir == aircraft.StateGround {
		rec.Flags |= binFlagGround
	}
	if !a.GroundSpeedKt.Zero() && !a.GroundSpeedKt.Stale {
		rec.GSKt = int16(a.GroundSpeedKt.Value)
	}
	if !a.Track.Zero() && !a.Track.Stale {
		rec.TrackCE2 = int16(math.Round(a.Track.Value * 100))
	}
	if !a.BaroRateFpm.Zero() && !a.BaroRateFpm.Stale {
		rec.BaroRateFpm = int16(a.BaroRateFpm.Value)
	}
	if sq, err := parseSquawk(a.Squawk.Value); err == nil {
		rec.Squawk = sq
	}
	rec.NIC = uint8(a.FusedScalars.NIC.Value)
	return rec
}

func categoryByte(cat string) uint8 {
	if len(cat) < 2 {
		return 0
	}
	// Categories are of the form "A0".."D7"; pack as (set<<4 | number).
	set := cat[0] - 'A'
	num := cat[1] - '0'
	if set > 3 || num > 7 {
		return 0
	}
	return uint8(set)<<4 | uint8(num)
}

func parseSquawk(s string) (uint16, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("invalid squawk %q", s)
	}
	var v uint16
	for _, c := range s {
		if c < '0' || c > '7' {
			return 0, fmt.Errorf("invalid squawk digit in %q", s)
		}
		v = v*8 + uint16(c-'0')
	}
	return v, nil
}

// tileGroups buckets every live aircraft with a valid tile index by
// that index, taking a consistent point-in-time copy across all
// registry shards.
func tileGroups(reg *aircraft.Registry) map[int][]*aircraft.Aircraft {
	groups := make(map[int][]*aircraft.Aircraft)
	reg.ForEachShard(func(_ int, shard []*aircraft.Aircraft) {
		for _, a := range shard {
			if a.PositionState.TileIndex < 0 {
				continue
			}
			groups[a.PositionState.TileIndex] = append(groups[a.PositionState.TileIndex], a)
		}
	})
	return groups
}

// WriteGlobeTiles writes one globe_<tile>.json and globe_<tile>.bin per
// occupied tile.
func WriteGlobeTiles(fs FileSystem, dir string, reg *aircraft.Registry, now time.Time) error {
	for tile, members := range tileGroups(reg) {
		if err := writeGlobeJSON(fs, dir, tile, members, now); err != nil {
			return err
		}
		if err := writeGlobeBin(fs, dir, tile, members, now); err != nil {
			return err
		}
	}
	return nil
}

func writeGlobeJSON(fs FileSystem, dir string, tile int, members []*aircraft.Aircraft, now time.Time) error {
	docs := make([]AircraftDoc, 0, len(members))
	for _, a := range members {
		docs = append(docs, BuildAircraftDoc(a, now))
	}
	file := GlobeFile{Now: float64(now.UnixMilli()) / 1000.0, TileIndex: tile, Aircraft: docs}
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal globe_%d.json: %w", tile, err)
	}
	return fsutilWriteFileAtomic(fs, filepath.Join(dir, fmt.Sprintf("globe_%d.json", tile)), data)
}

func writeGlobeBin(fs FileSystem, dir string, tile int, members []*aircraft.Aircraft, now time.Time) error {
	var buf bytes.Buffer

	south, west, north, east := boundingBox(members)
	hdr := binHeader{
		NowMS:     now.UnixMilli(),
		ElemSize:  uint32(binCraftRecordSize()),
		Count:     uint32(len(members)),
		TileIndex: int32(tile),
		South:     float32(south),
		West:      float32(west),
		North:     float32(north),
		East:      float32(east),
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write globe_%d.bin header: %w", tile, err)
	}
	for _, a := range members {
		rec := toBinCraft(a)
		if err := binary.Write(&buf, binary.LittleEndian, rec); err != nil {
			return fmt.Errorf("write globe_%d.bin record: %w", tile, err)
		}
	}
	return fsutilWriteFileAtomic(fs, filepath.Join(dir, fmt.Sprintf("globe_%d.bin", tile)), buf.Bytes())
}

func binCraftRecordSize() int {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, binCraftRecord{})
	return buf.Len()
}

func boundingBox(members []*aircraft.Aircraft) (south, west, north, east float64) {
	first := true
	for _, a := range members {
		if a.LastPosition.IsZero() {
			continue
		}
		if first {
			south, north = a.Lat, a.Lat
			west, east = a.Lon, a.Lon
			first = false
			continue
		}
		if a.Lat < south {
			south = a.Lat
		}
		if a.Lat > north {
			north = a.Lat
		}
		if a.Lon < west {
			west = a.Lon
		}
		if a.Lon > east {
			east = a.Lon
		}
	}
	return south, west, north, east
}
