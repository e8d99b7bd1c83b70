package trace

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/flightdeck/trackerd/internal/fsutil"
)

// recentPointCap and fullWriteEveryNWrites are spec.md §4.3 "Writer"
// constants: the fast-update trace keeps only the most recent points,
// and the full trace is rewritten far less often.
const (
	recentPointCap        = 142
	fullWriteEveryNWrites = 122
)

// PublicPoint is the JSON-facing encoding of one trace point, used for
// the trace_recent_<hex>.json.gz / trace_full_<hex>.json.gz snapshot
// documents (spec.md §4.5). It is distinct from the gob-encoded
// persistedTrace format in persist.go, which is internal warm-restart
// state rather than a public output.
type PublicPoint struct {
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	AltFt       int32     `json:"alt_ft"`
	OnGround    bool      `json:"on_ground"`
	AltUnknown  bool      `json:"alt_unknown,omitempty"`
	GS          int16     `json:"gs"`
	Track       float64   `json:"track"`
	RateFpm     float64   `json:"rate_fpm"`
	TimestampMS int64     `json:"ts_ms"`
	Leg         bool      `json:"leg,omitempty"`
	State       *StateAll `json:"state,omitempty"`
}

func toPublicPoint(p StatePoint, state *StateAll) PublicPoint {
	return PublicPoint{
		Lat:         p.Lat,
		Lon:         p.Lon,
		AltFt:       p.AltitudeFt(),
		OnGround:    p.OnGround(),
		AltUnknown:  p.AltUnknown(),
		GS:          p.GSPacked,
		Track:       p.TrackDeg,
		RateFpm:     p.RateFpm,
		TimestampMS: p.TimestampMS,
		Leg:         p.LegMarker(),
		State:       state,
	}
}

func stateAt(t *Trace, i int) *StateAll {
	if i < len(t.All) {
		return t.All[i]
	}
	return nil
}

// recentPoints returns up to the last recentPointCap points.
func recentPoints(t *Trace) []PublicPoint {
	n := len(t.Points)
	start := 0
	if n > recentPointCap {
		start = n - recentPointCap
	}
	out := make([]PublicPoint, 0, n-start)
	for i := start; i < n; i++ {
		out = append(out, toPublicPoint(t.Points[i], stateAt(t, i)))
	}
	return out
}

// fullPoints returns every point in the trace.
func fullPoints(t *Trace) []PublicPoint {
	out := make([]PublicPoint, 0, len(t.Points))
	for i, p := range t.Points {
		out = append(out, toPublicPoint(p, stateAt(t, i)))
	}
	return out
}

// historicalPoints returns the portion of the trace at or after since.
func historicalPoints(t *Trace, since time.Time) []PublicPoint {
	cutoffMS := since.UnixMilli()
	var out []PublicPoint
	for i, p := range t.Points {
		if p.TimestampMS < cutoffMS {
			continue
		}
		out = append(out, toPublicPoint(p, stateAt(t, i)))
	}
	return out
}

func writeJSONGZ(fs fsutil.FileSystem, path string, points []PublicPoint) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(points); err != nil {
		return fmt.Errorf("encode trace json: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return fsutil.WriteFileAtomic(fs, path, buf.Bytes(), 0o644)
}

// WriteRecent writes trace_recent_<hex>.json.gz under dir.
func WriteRecent(fs fsutil.FileSystem, dir, addrHex string, t *Trace) error {
	path := filepath.Join(dir, fmt.Sprintf("trace_recent_%s.json.gz", addrHex))
	return writeJSONGZ(fs, path, recentPoints(t))
}

// WriteFull writes trace_full_<hex>.json.gz under dir.
func WriteFull(fs fsutil.FileSystem, dir, addrHex string, t *Trace) error {
	path := filepath.Join(dir, fmt.Sprintf("trace_full_%s.json.gz", addrHex))
	return writeJSONGZ(fs, path, fullPoints(t))
}

// WriteHistorical writes the portion of the trace since UTC midnight to
// the per-day history tree (spec.md §4.3 "historical").
func WriteHistorical(fs fsutil.FileSystem, dir, addrHex string, t *Trace, now time.Time) error {
	midnight := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	path := filepath.Join(dir, addrHex, fmt.Sprintf("%s.json.gz", now.UTC().Format("2006-01-02")))
	return writeJSONGZ(fs, path, historicalPoints(t, midnight))
}

// ShouldWriteFull reports whether this write cycle should also rewrite
// the full trace document, per spec.md §4.3 ("written less often, every
// ~122 writes").
func ShouldWriteFull(t *Trace) bool {
	return t.writeCount%fullWriteEveryNWrites == 0
}
