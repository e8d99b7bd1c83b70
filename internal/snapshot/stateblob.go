package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"time"

	"github.com/flightdeck/trackerd/internal/aircraft"
)

// StateBlobShards is the number of hash-partitioned state-blob files
// the misc worker cycles through (spec.md §4.6 "state-blob writing (one
// of 256 shards per cycle)"). Independent of aircraft.Registry.ShardCount:
// this is a coarser 256-way partition purely for spreading the periodic
// full-state dump's write cost across many worker cycles, rather than
// re-dumping every aircraft on every cycle.
const StateBlobShards = 256

type stateBlob struct {
	GeneratedAt time.Time
	Aircraft    []AircraftDoc
}

func stateBlobShard(addr uint32) int {
	return int(addr % StateBlobShards)
}

func stateBlobPath(root string, shard int) string {
	return filepath.Join(root, "state_blobs", fmt.Sprintf("%02x.gob.gz", shard))
}

// WriteStateBlobShard gob-encodes and gzip-compresses every aircraft in
// registry whose address hashes to shard, atomically writing the result
// under root/state_blobs -- the same gob+gzip+atomic-rename idiom as
// internal/trace.persist.go's per-aircraft trace files, applied here to
// a coarse whole-registry dump instead of one aircraft at a time.
func WriteStateBlobShard(fs FileSystem, root string, registry *aircraft.Registry, shard int, now time.Time) error {
	blob := stateBlob{GeneratedAt: now}
	registry.ForEachShard(func(_ int, aircrafts []*aircraft.Aircraft) {
		for _, a := range aircrafts {
			if stateBlobShard(a.Addr) != shard {
				continue
			}
			blob.Aircraft = append(blob.Aircraft, BuildAircraftDoc(a, now))
		}
	})

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(blob); err != nil {
		return fmt.Errorf("encode state blob: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close state blob gzip writer: %w", err)
	}
	return fsutilWriteFileAtomic(fs, stateBlobPath(root, shard), buf.Bytes())
}
