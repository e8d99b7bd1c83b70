package stats

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/flightdeck/trackerd/internal/fsutil"
	"github.com/flightdeck/trackerd/internal/snapshot"
	"github.com/flightdeck/trackerd/internal/store"
)

// WriteDocuments writes stats.json and stats.prom into dir, reflecting
// w at time now (spec.md §4.7 "Two JSON flavors ... structured
// stats.json and a Prometheus text file"). It shares the same
// temp-path-then-rename helper every other snapshot emitter uses.
func WriteDocuments(fs fsutil.FileSystem, dir string, w Windows, now time.Time) error {
	data, err := MarshalJSON(w, now)
	if err != nil {
		return fmt.Errorf("marshal stats.json: %w", err)
	}
	if err := snapshot.WriteStats(fs, dir, data); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(fs, filepath.Join(dir, "stats.prom"), MarshalPrometheus(w), 0o644)
}

// PersistBucket stores one just-closed bucket into the sqlite-backed
// event/stats log (internal/store), so stats survive a restart for
// offline analysis -- spec.md §4.7's ring only covers 15 minutes live.
func PersistBucket(db *store.DB, snap Snapshot) error {
	return db.InsertStatsBucket(store.StatsBucketRow{
		BucketStartUnix:      snap.StartUnix,
		MessagesTotal:        snap.MessagesTotal,
		MessagesBySource:     snap.MessagesBySource,
		CPRAccepted:          snap.CPRAccepted,
		CPRRejected:          snap.CPRRejected,
		PositionsGlobal:      snap.PositionsGlobal,
		PositionsLocal:       snap.PositionsLocal,
		AircraftTracked:      snap.AircraftTracked,
		AircraftWithPosition: snap.AircraftWithPosition,
		MaxRangeM:            snap.MaxRangeM,
		P50RangeM:            snap.P50RangeM,
		P95RangeM:            snap.P95RangeM,
		MaxSignalDB:          snap.MaxSignalDB,
		P95SignalDB:          snap.P95SignalDB,
	})
}
