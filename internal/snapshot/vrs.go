package snapshot

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
)

// vrsParts is how many slices vrs.json is produced in (spec.md §4.5:
// "produced in 16 parts so only a fraction of aircraft are
// re-serialized per tick"), mirroring the trace writer pool's rotor
// slicing (internal/trace.sliceCount) at a coarser granularity sized to
// the whole registry rather than one shard.
const vrsParts = 16

// VRSAircraft is one entry of the compact VRS-compatible array.
type VRSAircraft struct {
	Hex      string   `json:"Icao"`
	Callsign string   `json:"Call,omitempty"`
	Squawk   string   `json:"Sqk,omitempty"`
	Lat      *float64 `json:"Lat,omitempty"`
	Lon      *float64 `json:"Long,omitempty"`
	AltFt    *float64 `json:"Alt,omitempty"`
	GSKt     *float64 `json:"Spd,omitempty"`
	Track    *float64 `json:"Trak,omitempty"`
	OnGround bool     `json:"Gnd"`
}

// VRSFile is the top-level vrs.json document.
type VRSFile struct {
	Aircraft []VRSAircraft `json:"acList"`
	Src      int           `json:"src"`
	Stm      int64         `json:"stm"`
}

func toVRSAircraft(a *aircraft.Aircraft) VRSAircraft {
	v := VRSAircraft{
		Hex:      hexAddr(a.Addr),
		OnGround: a.GroundAir == aircraft.StateGround,
	}
	if !a.Callsign.Zero() && !a.Callsign.Stale {
		v.Callsign = a.Callsign.Value
	}
	if !a.Squawk.Zero() && !a.Squawk.Stale {
		v.Squawk = a.Squawk.Value
	}
	if !a.LastPosition.IsZero() {
		lat, lon := a.Lat, a.Lon
		v.Lat, v.Lon = &lat, &lon
	}
	v.AltFt = floatPtr(a.BaroAltFt.Value, !a.BaroAltFt.Zero() && !a.BaroAltFt.Stale)
	v.GSKt = floatPtr(a.GroundSpeedKt.Value, !a.GroundSpeedKt.Zero() && !a.GroundSpeedKt.Stale)
	v.Track = floatPtr(a.Track.Value, !a.Track.Zero() && !a.Track.Stale)
	return v
}

// WriteVRSPart writes the partIndex-th of vrsParts slices of vrs.json,
// selecting aircraft whose address falls in that slice (addr % vrsParts
// == partIndex) and merging them into the existing on-disk document so
// a full vrs.json always reflects the union of all 16 slices.
func WriteVRSPart(fs FileSystem, dir string, reg *aircraft.Registry, now time.Time, partIndex int) error {
	if partIndex < 0 || partIndex >= vrsParts {
		return fmt.Errorf("vrs part index %d out of range [0,%d)", partIndex, vrsParts)
	}

	existing := readVRSFile(fs, dir)
	byHex := make(map[string]VRSAircraft, len(existing.Aircraft))
	for _, v := range existing.Aircraft {
		byHex[v.Hex] = v
	}

	reg.ForEachShard(func(_ int, shard []*aircraft.Aircraft) {
		for _, a := range shard {
			if int(a.Addr)%vrsParts != partIndex {
				continue
			}
			byHex[hexAddr(a.Addr)] = toVRSAircraft(a)
		}
	})

	merged := VRSFile{Src: 1, Stm: now.UnixMilli()}
	merged.Aircraft = make([]VRSAircraft, 0, len(byHex))
	for _, v := range byHex {
		merged.Aircraft = append(merged.Aircraft, v)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal vrs.json: %w", err)
	}
	return fsutilWriteFileAtomic(fs, filepath.Join(dir, "vrs.json"), data)
}

func readVRSFile(fs FileSystem, dir string) VRSFile {
	data, err := fs.ReadFile(filepath.Join(dir, "vrs.json"))
	if err != nil {
		return VRSFile{}
	}
	var file VRSFile
	if err := json.Unmarshal(data, &file); err != nil {
		return VRSFile{}
	}
	return file
}

// VRSParts is exported so the scheduler can cycle partIndex 0..VRSParts-1
// across successive ticks.
const VRSParts = vrsParts
