package store

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := NewDB(path)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBCreatesSchemaAndBaselines(t *testing.T) {
	db := newTestDB(t)

	version, dirty, err := db.MigrateVersion(mustMigrationsFS(t))
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Fatal("fresh database should not be dirty")
	}
	if version != 2 {
		t.Fatalf("expected baseline at version 2, got %d", version)
	}
}

func TestInsertAndListStatsBuckets(t *testing.T) {
	db := newTestDB(t)

	row := StatsBucketRow{
		BucketStartUnix:      1000,
		MessagesTotal:        500,
		MessagesBySource:     map[string]int64{"MODE_S": 400, "MLAT": 100},
		CPRAccepted:          50,
		CPRRejected:          2,
		PositionsGlobal:      40,
		PositionsLocal:       10,
		AircraftTracked:      30,
		AircraftWithPosition: 25,
		MaxRangeM:            185000,
		P50RangeM:            40000,
		P95RangeM:            150000,
		MaxSignalDB:          -3.2,
		P95SignalDB:          -12.5,
	}
	if err := db.InsertStatsBucket(row); err != nil {
		t.Fatalf("InsertStatsBucket failed: %v", err)
	}

	got, err := db.ListRecentStatsBuckets(10)
	if err != nil {
		t.Fatalf("ListRecentStatsBuckets failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(got))
	}
	if got[0].MessagesTotal != 500 {
		t.Errorf("MessagesTotal = %d, want 500", got[0].MessagesTotal)
	}
	if got[0].MessagesBySource["MODE_S"] != 400 {
		t.Errorf("MessagesBySource[MODE_S] = %d, want 400", got[0].MessagesBySource["MODE_S"])
	}
}

func TestInsertAndListTrackerEvents(t *testing.T) {
	db := newTestDB(t)

	if err := db.InsertTrackerEvent(100, "connect", "receiver-1", "beast tcp 127.0.0.1:30005"); err != nil {
		t.Fatalf("InsertTrackerEvent failed: %v", err)
	}
	if err := db.InsertTrackerEvent(200, "disconnect", "receiver-1", "read timeout"); err != nil {
		t.Fatalf("InsertTrackerEvent failed: %v", err)
	}

	events, err := db.ListRecentTrackerEvents(10)
	if err != nil {
		t.Fatalf("ListRecentTrackerEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != "disconnect" {
		t.Errorf("expected most recent event first, got %q", events[0].EventType)
	}
}

func TestUpsertTraceSummaryReplacesExistingLeg(t *testing.T) {
	db := newTestDB(t)

	maxAlt := 35000.0
	if err := db.UpsertTraceSummary(TraceSummaryRow{
		ICAOHex: "a1b2c3", LegIndex: 0,
		StartUnixNanos: 1, EndUnixNanos: 100, PointCount: 10,
		MaxAltitudeFt: &maxAlt, Callsign: "TEST123",
	}); err != nil {
		t.Fatalf("UpsertTraceSummary failed: %v", err)
	}

	updatedAlt := 36000.0
	if err := db.UpsertTraceSummary(TraceSummaryRow{
		ICAOHex: "a1b2c3", LegIndex: 0,
		StartUnixNanos: 1, EndUnixNanos: 200, PointCount: 20,
		MaxAltitudeFt: &updatedAlt, Callsign: "TEST123",
	}); err != nil {
		t.Fatalf("second UpsertTraceSummary failed: %v", err)
	}

	legs, err := db.ListTraceSummaries("a1b2c3")
	if err != nil {
		t.Fatalf("ListTraceSummaries failed: %v", err)
	}
	if len(legs) != 1 {
		t.Fatalf("expected leg to be replaced not duplicated, got %d rows", len(legs))
	}
	if legs[0].PointCount != 20 {
		t.Errorf("PointCount = %d, want 20 (updated)", legs[0].PointCount)
	}
	if *legs[0].MaxAltitudeFt != 36000.0 {
		t.Errorf("MaxAltitudeFt = %v, want 36000", *legs[0].MaxAltitudeFt)
	}
}

func TestGetDatabaseStats(t *testing.T) {
	db := newTestDB(t)

	if err := db.InsertTrackerEvent(1, "connect", "r1", ""); err != nil {
		t.Fatalf("InsertTrackerEvent failed: %v", err)
	}

	stats, err := db.GetDatabaseStats()
	if err != nil {
		t.Fatalf("GetDatabaseStats failed: %v", err)
	}
	if len(stats.Tables) == 0 {
		t.Fatal("expected at least one table in stats")
	}

	var found bool
	for _, tbl := range stats.Tables {
		if tbl.Name == "tracker_event" && tbl.RowCount == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected tracker_event table with 1 row")
	}
}
