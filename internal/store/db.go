// Package store persists tracker-level history that is useful for offline
// analysis and the admin UI but is not needed for the hot aircraft-update
// path: ten-second stats buckets, a rolling log of connector lifecycle
// events, and a per-leg trace rollup. The live trace itself stays
// file-based (see internal/trace); this is supplementary durable tail.
package store

import (
	"compress/gzip"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

// DB wraps a sqlite connection with the tracker's stats/event/trace-rollup
// schema.
type DB struct {
	*sql.DB
}

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode controls whether to use filesystem or embedded migrations.
var DevMode = false

func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/store/migrations"), nil
	}
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sub-filesystem for embedded migrations: %w", err)
	}
	return subFS, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return nil
}

// NewDB opens (or creates) the sqlite database at path and ensures its
// schema is at the latest migration version.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	db := &DB{sqlDB}
	if err := applyPragmas(sqlDB); err != nil {
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	var migrationsTableExists bool
	err = sqlDB.QueryRow(`
		SELECT COUNT(*) > 0 FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&migrationsTableExists)
	if err != nil {
		return nil, fmt.Errorf("check schema_migrations: %w", err)
	}

	mfs, err := getMigrationsFS()
	if err != nil {
		return nil, err
	}

	if migrationsTableExists {
		if err := db.MigrateUp(mfs); err != nil {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		return db, nil
	}

	var tableCount int
	err = sqlDB.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name NOT LIKE 'sqlite_%'
	`).Scan(&tableCount)
	if err != nil {
		return nil, fmt.Errorf("count tables: %w", err)
	}

	if tableCount > 0 {
		// Legacy database with tables but no migration bookkeeping: assume
		// it already matches schema.sql and baseline it at the latest
		// version rather than re-running CREATE TABLE.
		latest, err := GetLatestMigrationVersion(mfs)
		if err != nil {
			return nil, err
		}
		if err := db.BaselineAtVersion(latest); err != nil {
			return nil, fmt.Errorf("baseline existing database: %w", err)
		}
		return db, nil
	}

	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	latest, err := GetLatestMigrationVersion(mfs)
	if err != nil {
		return nil, err
	}
	if err := db.BaselineAtVersion(latest); err != nil {
		return nil, fmt.Errorf("baseline fresh database: %w", err)
	}

	return db, nil
}

// InsertStatsBucket stores one completed ten-second stats bucket.
func (db *DB) InsertStatsBucket(b StatsBucketRow) error {
	messagesBySource, err := json.Marshal(b.MessagesBySource)
	if err != nil {
		return fmt.Errorf("marshal messages_by_source: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO stats_bucket (
			bucket_start_unix, messages_total, messages_by_source_json,
			cpr_accepted, cpr_rejected, positions_global, positions_local,
			aircraft_tracked, aircraft_with_position,
			max_range_m, p50_range_m, p95_range_m,
			max_signal_db, p95_signal_db, write_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BucketStartUnix, b.MessagesTotal, string(messagesBySource),
		b.CPRAccepted, b.CPRRejected, b.PositionsGlobal, b.PositionsLocal,
		b.AircraftTracked, b.AircraftWithPosition,
		b.MaxRangeM, b.P50RangeM, b.P95RangeM,
		b.MaxSignalDB, b.P95SignalDB, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert stats_bucket: %w", err)
	}
	return nil
}

// StatsBucketRow is one row of the stats_bucket table.
type StatsBucketRow struct {
	BucketStartUnix      int64
	MessagesTotal        int64
	MessagesBySource     map[string]int64
	CPRAccepted          int64
	CPRRejected          int64
	PositionsGlobal      int64
	PositionsLocal       int64
	AircraftTracked      int64
	AircraftWithPosition int64
	MaxRangeM            float64
	P50RangeM            float64
	P95RangeM            float64
	MaxSignalDB          float64
	P95SignalDB          float64
}

// ListRecentStatsBuckets returns the last n stats buckets, most recent
// first.
func (db *DB) ListRecentStatsBuckets(n int) ([]StatsBucketRow, error) {
	rows, err := db.Query(`
		SELECT bucket_start_unix, messages_total, messages_by_source_json,
			cpr_accepted, cpr_rejected, positions_global, positions_local,
			aircraft_tracked, aircraft_with_position,
			max_range_m, p50_range_m, p95_range_m,
			max_signal_db, p95_signal_db
		FROM stats_bucket ORDER BY bucket_start_unix DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatsBucketRow
	for rows.Next() {
		var b StatsBucketRow
		var messagesBySourceJSON string
		if err := rows.Scan(
			&b.BucketStartUnix, &b.MessagesTotal, &messagesBySourceJSON,
			&b.CPRAccepted, &b.CPRRejected, &b.PositionsGlobal, &b.PositionsLocal,
			&b.AircraftTracked, &b.AircraftWithPosition,
			&b.MaxRangeM, &b.P50RangeM, &b.P95RangeM,
			&b.MaxSignalDB, &b.P95SignalDB,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(messagesBySourceJSON), &b.MessagesBySource); err != nil {
			return nil, fmt.Errorf("unmarshal messages_by_source: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertTrackerEvent records a connector lifecycle event (connect,
// disconnect, reconnect, or garbage-frame burst) for the admin UI.
func (db *DB) InsertTrackerEvent(eventUnixNanos int64, eventType, receiverID, detail string) error {
	_, err := db.Exec(`
		INSERT INTO tracker_event (event_unix_nanos, event_type, receiver_id, detail, write_timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		eventUnixNanos, eventType, receiverID, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert tracker_event: %w", err)
	}
	return nil
}

// TrackerEventRow is one row of the tracker_event table.
type TrackerEventRow struct {
	EventUnixNanos int64
	EventType      string
	ReceiverID     string
	Detail         string
}

// ListRecentTrackerEvents returns the last n tracker events, most recent
// first.
func (db *DB) ListRecentTrackerEvents(n int) ([]TrackerEventRow, error) {
	rows, err := db.Query(`
		SELECT event_unix_nanos, event_type, receiver_id, COALESCE(detail, '')
		FROM tracker_event ORDER BY event_unix_nanos DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TrackerEventRow
	for rows.Next() {
		var e TrackerEventRow
		if err := rows.Scan(&e.EventUnixNanos, &e.EventType, &e.ReceiverID, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TraceSummaryRow is one completed trajectory leg, rolled up for querying
// without replaying the full trace file.
type TraceSummaryRow struct {
	ICAOHex          string
	LegIndex         int
	StartUnixNanos   int64
	EndUnixNanos     int64
	PointCount       int
	MaxAltitudeFt    *float64
	MinAltitudeFt    *float64
	MaxGroundSpeedKt *float64
	Callsign         string
}

// UpsertTraceSummary records (or replaces) the rollup for one leg of an
// aircraft's trace.
func (db *DB) UpsertTraceSummary(s TraceSummaryRow) error {
	_, err := db.Exec(`
		INSERT INTO trace_summary (
			icao_hex, leg_index, start_unix_nanos, end_unix_nanos, point_count,
			max_altitude_ft, min_altitude_ft, max_ground_speed_kt, callsign, write_timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (icao_hex, leg_index) DO UPDATE SET
			end_unix_nanos = excluded.end_unix_nanos,
			point_count = excluded.point_count,
			max_altitude_ft = excluded.max_altitude_ft,
			min_altitude_ft = excluded.min_altitude_ft,
			max_ground_speed_kt = excluded.max_ground_speed_kt,
			callsign = excluded.callsign,
			write_timestamp = excluded.write_timestamp`,
		s.ICAOHex, s.LegIndex, s.StartUnixNanos, s.EndUnixNanos, s.PointCount,
		s.MaxAltitudeFt, s.MinAltitudeFt, s.MaxGroundSpeedKt, s.Callsign, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert trace_summary: %w", err)
	}
	return nil
}

// ListTraceSummaries returns every recorded leg for an aircraft, ordered by
// leg index.
func (db *DB) ListTraceSummaries(icaoHex string) ([]TraceSummaryRow, error) {
	rows, err := db.Query(`
		SELECT icao_hex, leg_index, start_unix_nanos, end_unix_nanos, point_count,
			max_altitude_ft, min_altitude_ft, max_ground_speed_kt, COALESCE(callsign, '')
		FROM trace_summary WHERE icao_hex = ? ORDER BY leg_index ASC`, icaoHex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TraceSummaryRow
	for rows.Next() {
		var s TraceSummaryRow
		if err := rows.Scan(
			&s.ICAOHex, &s.LegIndex, &s.StartUnixNanos, &s.EndUnixNanos, &s.PointCount,
			&s.MaxAltitudeFt, &s.MinAltitudeFt, &s.MaxGroundSpeedKt, &s.Callsign,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TableStats describes one table's row count and on-disk size.
type TableStats struct {
	Name     string  `json:"name"`
	RowCount int64   `json:"row_count"`
	SizeMB   float64 `json:"size_mb"`
}

// DatabaseStats summarizes the whole database for the admin UI.
type DatabaseStats struct {
	TotalSizeMB float64      `json:"total_size_mb"`
	Tables      []TableStats `json:"tables"`
}

// GetDatabaseStats reports size and row counts for every table.
func (db *DB) GetDatabaseStats() (*DatabaseStats, error) {
	var totalPages, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&totalPages); err != nil {
		return nil, fmt.Errorf("page_count: %w", err)
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("page_size: %w", err)
	}

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}

	var tables []TableStats
	for _, name := range names {
		var rowCount int64
		// name comes from sqlite_master (trusted metadata), quoted with %q,
		// not user input -- safe to interpolate as an identifier.
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&rowCount); err != nil {
			rowCount = 0
		}
		tables = append(tables, TableStats{Name: name, RowCount: rowCount})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].RowCount > tables[j].RowCount })

	return &DatabaseStats{
		TotalSizeMB: float64(totalPages*pageSize) / (1024 * 1024),
		Tables:      tables,
	}, nil
}

// AttachAdminRoutes mounts a live SQL console and a few JSON/backup
// endpoints under the debug mux, for operators inspecting a running
// station without needing sqlite3 on the box.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://trackerd.db", db.DB, &tailsql.DBOptions{
		Label: "Tracker DB",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Database table sizes and row counts (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}))

	debug.Handle("backup", "Download a gzip backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("backup failed: %v", err), http.StatusInternalServerError)
			return
		}
		defer os.Remove(backupPath)

		f, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("open backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		io.Copy(gz, f)
	}))
}
