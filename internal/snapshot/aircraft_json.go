package snapshot

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
	"github.com/flightdeck/trackerd/internal/config"
)

// AircraftFile is the top-level aircraft.json document (spec.md §4.5).
type AircraftFile struct {
	Now      float64       `json:"now"`
	Messages int64         `json:"messages"`
	Aircraft []AircraftDoc `json:"aircraft"`
}

// WriteAircraftJSON builds and atomically writes aircraft.json: every
// live aircraft except those skipped by skipFromAircraftJSON.
func WriteAircraftJSON(fs FileSystem, dir string, reg *aircraft.Registry, cfg *config.TrackerConfig, now time.Time, totalMessages int64) error {
	docs := make([]AircraftDoc, 0, reg.Len())
	reg.ForEachShard(func(_ int, shard []*aircraft.Aircraft) {
		for _, a := range shard {
			if skipFromAircraftJSON(a, now, cfg) {
				continue
			}
			docs = append(docs, BuildAircraftDoc(a, now))
		}
	})

	file := AircraftFile{
		Now:      float64(now.UnixMilli()) / 1000.0,
		Messages: totalMessages,
		Aircraft: docs,
	}

	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal aircraft.json: %w", err)
	}
	return fsutilWriteFileAtomic(fs, filepath.Join(dir, "aircraft.json"), data)
}
