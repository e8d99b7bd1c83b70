package fsutil

import (
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic_MemoryFileSystem(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := WriteFileAtomic(mfs, "/snapshots/aircraft.json", []byte(`{"now":1}`), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := mfs.ReadFile("/snapshots/aircraft.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != `{"now":1}` {
		t.Errorf("got %q, want final content", data)
	}

	if mfs.Exists("/snapshots/aircraft.json.tmp") {
		t.Error("temp file should not remain after atomic write")
	}
}

func TestWriteFileAtomic_OverwritesExisting(t *testing.T) {
	mfs := NewMemoryFileSystem()

	if err := WriteFileAtomic(mfs, "/aircraft.json", []byte("v1"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(mfs, "/aircraft.json", []byte("v2"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := mfs.ReadFile("/aircraft.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("got %q, want v2", data)
	}
}

func TestWriteFileAtomic_OSFileSystem(t *testing.T) {
	fs := OSFileSystem{}
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "nested", "aircraft.json")

	if err := WriteFileAtomic(fs, target, []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	if !fs.Exists(target) {
		t.Fatal("expected final file to exist")
	}
	if fs.Exists(target + ".tmp") {
		t.Error("temp file should be renamed away, not left behind")
	}

	data, err := fs.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "data" {
		t.Errorf("got %q, want data", data)
	}
}
