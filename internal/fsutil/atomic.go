package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to a temporary file beside name and renames it
// into place, so a reader never observes a partially-written snapshot. Every
// snapshot emitter in spec.md §4.5 ("All writers write to a temporary path
// and rename into place on success") goes through this.
func WriteFileAtomic(fs FileSystem, name string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(name)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp := name + ".tmp"
	if err := fs.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp %s: %w", tmp, err)
	}

	if renamer, ok := fs.(interface{ Rename(oldpath, newpath string) error }); ok {
		if err := renamer.Rename(tmp, name); err != nil {
			return fmt.Errorf("rename %s -> %s: %w", tmp, name, err)
		}
		return nil
	}

	// Fallback for filesystems without a dedicated Rename: read back the
	// temp file and write it to the final name, then remove the temp file.
	data2, err := fs.ReadFile(tmp)
	if err != nil {
		return fmt.Errorf("read back temp %s: %w", tmp, err)
	}
	if err := fs.WriteFile(name, data2, perm); err != nil {
		return fmt.Errorf("write final %s: %w", name, err)
	}
	_ = fs.Remove(tmp)
	return nil
}

// Rename implements the optional Rename interface for OSFileSystem.
func (OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
