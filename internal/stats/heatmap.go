package stats

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/flightdeck/trackerd/internal/fsutil"
)

// HeatmapDocument is heatmap.json's shape: a coarse receiver-range
// histogram, the debug artifact spec.md's misc worker maintains
// alongside stats.json (spec.md §4.6 "heatmap writing").
type HeatmapDocument struct {
	GeneratedAt string  `json:"generated_at"`
	BinWidthM   int     `json:"bin_width_m"`
	CountsByBin []int64 `json:"counts_by_bin"`
}

// WriteHeatmap writes heatmap.json from w's all-time range histogram,
// using the same temp-path-then-rename helper every other snapshot
// document uses.
func WriteHeatmap(fs fsutil.FileSystem, dir string, w Windows, now time.Time) error {
	doc := HeatmapDocument{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		BinWidthM:   RangeHistogramBinM,
		CountsByBin: w.AllTime.RangeHistogramM,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal heatmap.json: %w", err)
	}
	return fsutil.WriteFileAtomic(fs, filepath.Join(dir, "heatmap.json"), data, 0o644)
}
