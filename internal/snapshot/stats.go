package snapshot

import "path/filepath"

// WriteStats atomically writes a pre-serialized stats.json payload
// (spec.md §4.7), produced by internal/stats. Kept here rather than in
// internal/stats so every "temp path then rename" snapshot write goes
// through the same helper and directory convention.
func WriteStats(fs FileSystem, dir string, data []byte) error {
	return fsutilWriteFileAtomic(fs, filepath.Join(dir, "stats.json"), data)
}
