package store

import (
	"io/fs"
	"testing"
)

func mustMigrationsFS(t *testing.T) fs.FS {
	t.Helper()
	mfs, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}
	return mfs
}

func TestGetLatestMigrationVersion(t *testing.T) {
	mfs := mustMigrationsFS(t)

	version, err := GetLatestMigrationVersion(mfs)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected latest version 2, got %d", version)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	mfs := mustMigrationsFS(t)

	if err := db.MigrateUp(mfs); err != nil {
		t.Fatalf("second MigrateUp should be a no-op, got error: %v", err)
	}

	version, dirty, err := db.MigrateVersion(mfs)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Fatal("expected clean state")
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
}

func TestBaselineAtVersionRejectsSecondCall(t *testing.T) {
	db := newTestDB(t)

	if err := db.BaselineAtVersion(5); err == nil {
		t.Fatal("expected error baselining an already-baselined database")
	}
}
