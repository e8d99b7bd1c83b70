package trace

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"path/filepath"

	"github.com/flightdeck/trackerd/internal/fsutil"
)

// persistedTrace is the on-disk encoding of one aircraft's trace,
// gob-encoded and gzip-compressed (grounded on the teacher's
// l3grid.serializeGrid/deserializeGrid pattern in
// internal/lidar/l3grid/background_persistence.go).
type persistedTrace struct {
	Points []StatePoint
	All    []*StateAll
}

func serialize(t *Trace) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(persistedTrace{Points: t.Points, All: t.All}); err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func deserialize(data []byte) (*Trace, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer gz.Close()

	var p persistedTrace
	if err := gob.NewDecoder(gz).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return &Trace{Points: p.Points, All: p.All}, nil
}

// aircraftDir mirrors the on-disk layout internal_state/<hex>/<addr>
// named in spec.md §4.3 "Persistence / warm restart": the address is
// bucketed by its low byte so no single directory holds every aircraft.
func aircraftDir(root string, addrHex string) string {
	bucket := addrHex
	if len(bucket) >= 2 {
		bucket = addrHex[len(addrHex)-2:]
	}
	return filepath.Join(root, "internal_state", bucket)
}

// statePath is the full path to one aircraft's persisted trace file.
func statePath(root string, addrHex string) string {
	return filepath.Join(aircraftDir(root, addrHex), addrHex)
}

// Save atomically writes t to its per-aircraft state file under root.
func Save(fs fsutil.FileSystem, root, addrHex string, t *Trace) error {
	data, err := serialize(t)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(fs, statePath(root, addrHex), data, 0o644)
}

// Load reads back a previously-persisted trace. A size mismatch against
// the running capacity is not an error here: the caller (warm restart) decides
// whether to discard or accept a trace whose capacity no longer matches
// the running configuration (spec.md §4.3).
func Load(fs fsutil.FileSystem, root, addrHex string) (*Trace, error) {
	data, err := fs.ReadFile(statePath(root, addrHex))
	if err != nil {
		return nil, err
	}
	return deserialize(data)
}

// FitsCapacity reports whether a loaded trace's point count is within
// capacity, the discard rule named in spec.md §4.3 "Persistence / warm
// restart": a trace longer than the configured TraceSize is dropped
// rather than silently truncated.
func FitsCapacity(t *Trace, capacity int) bool {
	return capacity <= 0 || len(t.Points) <= capacity
}
