package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultTrackerConfigGetters(t *testing.T) {
	cfg := DefaultTrackerConfig()

	if got, want := cfg.GetTrackStale(), 60*time.Second; got != want {
		t.Errorf("GetTrackStale() = %v, want %v", got, want)
	}
	if got, want := cfg.GetTrackExpire(), 300*time.Second; got != want {
		t.Errorf("GetTrackExpire() = %v, want %v", got, want)
	}
	if got, want := cfg.GetFilterPersistence(), 4; got != want {
		t.Errorf("GetFilterPersistence() = %d, want %d", got, want)
	}
	if got, want := cfg.GetJSONReliable(), 2; got != want {
		t.Errorf("GetJSONReliable() = %d, want %d", got, want)
	}
	if got, want := cfg.GetTraceSize(), 8500; got != want {
		t.Errorf("GetTraceSize() = %d, want %d", got, want)
	}
}

func TestEmptyTrackerConfigFallsBackToDefaults(t *testing.T) {
	cfg := EmptyTrackerConfig()

	if cfg.GetTrackStale() != 60*time.Second {
		t.Errorf("GetTrackStale() on empty config should fall back to default")
	}
	if cfg.GetFilterPersistence() != 4 {
		t.Errorf("GetFilterPersistence() on empty config should fall back to default")
	}
	if cfg.GetGlobeIndexEnabled() != false {
		t.Errorf("GetGlobeIndexEnabled() on empty config should default to false")
	}
}

func TestLoadTrackerConfigPartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.json")
	if err := os.WriteFile(path, []byte(`{"filter_persistence": 7, "track_stale": "90s"}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadTrackerConfig(path)
	if err != nil {
		t.Fatalf("LoadTrackerConfig: %v", err)
	}

	if got, want := cfg.GetFilterPersistence(), 7; got != want {
		t.Errorf("GetFilterPersistence() = %d, want %d", got, want)
	}
	if got, want := cfg.GetTrackStale(), 90*time.Second; got != want {
		t.Errorf("GetTrackStale() = %v, want %v", got, want)
	}
	// Unspecified fields keep the compiled-in default.
	if got, want := cfg.GetJSONReliable(), 2; got != want {
		t.Errorf("GetJSONReliable() = %d, want %d", got, want)
	}
}

func TestLoadTrackerConfigRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.txt")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadTrackerConfig(path); err == nil {
		t.Fatal("expected error for non-.json extension")
	}
}

func TestLoadTrackerConfigRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tracker.json")
	big := make([]byte, maxConfigFileSize+1)
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadTrackerConfig(path); err == nil {
		t.Fatal("expected error for oversized config file")
	}
}

func TestTrackerConfigValidateRejectsBadDuration(t *testing.T) {
	cfg := DefaultTrackerConfig()
	bad := "not-a-duration"
	cfg.TrackStale = &bad
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for malformed duration")
	}
}

func TestTrackerConfigValidateRejectsBadCounters(t *testing.T) {
	cfg := DefaultTrackerConfig()
	zero := 0
	cfg.FilterPersistence = &zero
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for filter_persistence < 1")
	}
}

func TestAircraftTimeout(t *testing.T) {
	cfg := DefaultTrackerConfig()

	if got, want := cfg.AircraftTimeout(false, false), 5*time.Minute; got != want {
		t.Errorf("no-position ICAO timeout = %v, want %v", got, want)
	}
	if got, want := cfg.AircraftTimeout(false, true), 2*time.Minute; got != want {
		t.Errorf("no-position non-ICAO timeout = %v, want %v", got, want)
	}
	if got, want := cfg.AircraftTimeout(true, false), time.Hour; got != want {
		t.Errorf("positioned ICAO timeout = %v, want %v", got, want)
	}

	globe := DefaultTrackerConfig()
	enabled := true
	globe.GlobeIndexEnabled = &enabled
	if got, want := globe.AircraftTimeout(true, false), 26*time.Hour; got != want {
		t.Errorf("globe-index positioned timeout = %v, want %v", got, want)
	}

	persisted := DefaultTrackerConfig()
	persisted.StatePersistenceEnabled = &enabled
	if got, want := persisted.AircraftTimeout(true, false), 14*24*time.Hour; got != want {
		t.Errorf("state-persistence positioned timeout = %v, want %v", got, want)
	}
}

func TestServiceConfigDefaults(t *testing.T) {
	cfg := DefaultServiceConfig()
	if len(cfg.Listeners) == 0 {
		t.Fatal("DefaultServiceConfig should declare at least one listener")
	}
	if cfg.JSONDir == "" {
		t.Error("JSONDir must be set")
	}
}

func TestLoadServiceConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service.json")
	doc := `{"json_dir": "/tmp/custom", "listeners": [{"name": "beast-in", "addr": ":30005", "framing": "beast"}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadServiceConfig(path)
	if err != nil {
		t.Fatalf("LoadServiceConfig: %v", err)
	}
	if cfg.JSONDir != "/tmp/custom" {
		t.Errorf("JSONDir = %q, want /tmp/custom", cfg.JSONDir)
	}
	if len(cfg.Listeners) != 1 || cfg.Listeners[0].Framing != FramingBeast {
		t.Errorf("unexpected listeners: %+v", cfg.Listeners)
	}
}
