// Package config holds the tunable constants and service topology for the
// tracker, loaded from JSON on top of compiled-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tracker.defaults.json"

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// TrackerConfig holds the tunable constants named throughout the tracker,
// trace store and ingestion pipeline. Fields are pointers so a partial JSON
// document only overrides what it names; everything else keeps its
// compiled-in default.
type TrackerConfig struct {
	// TrackStale is how long a field's current source stays "fresh" before
	// a lower-priority source is allowed to win again.
	TrackStale *string `json:"track_stale,omitempty"`
	// TrackExpire is the window after which an aircraft is stale enough to
	// be skipped from aircraft.json unless it has a recent JAERO position.
	TrackExpire *string `json:"track_expire,omitempty"`
	// TrackExpireLong gates ground/air state transitions out of a CERTAIN
	// state absent a fresher opposite-value message.
	TrackExpireLong *string `json:"track_expire_long,omitempty"`

	// AddrReliableWindow is how long an aircraft may go without an
	// address-reliable message before it stops accepting updates.
	AddrReliableWindow *string `json:"addr_reliable_window,omitempty"`

	// MlatGuard and JaeroGuard are the "may not overwrite a higher source
	// within N seconds" guards in accept_data.
	MlatGuard  *string `json:"mlat_guard,omitempty"`
	JaeroGuard *string `json:"jaero_guard,omitempty"`

	// ReduceForwardInterval is the minimum spacing between a field's
	// successive eligibility for the reduced-bandwidth forward cycle
	// (spec.md §3, §4.2 "On accept").
	ReduceForwardInterval *string `json:"reduce_forward_interval,omitempty"`

	// FilterPersistence is the CPR reliability counter cap.
	FilterPersistence *int `json:"filter_persistence,omitempty"`
	// JSONReliable is the reliability-counter threshold at which a
	// position is considered trustworthy enough to publish/trace/tile.
	JSONReliable *int `json:"json_reliable,omitempty"`

	// MaxRangeMeters bounds decoded positions from the receiver, 0 disables.
	MaxRangeMeters *float64 `json:"max_range_meters,omitempty"`
	// ReceiverLat/ReceiverLon are the configured (fallback) receiver
	// location, used when no aircraft position and no GPS fix are
	// available for local CPR decode / surface reference.
	ReceiverLat *float64 `json:"receiver_lat,omitempty"`
	ReceiverLon *float64 `json:"receiver_lon,omitempty"`

	// JSONTraceInterval is the minimum spacing between trace points absent
	// some other trigger (track/altitude/ground-state change, jump).
	JSONTraceInterval *string `json:"json_trace_interval,omitempty"`
	// TraceSize is the per-aircraft cap on in-memory StatePoints.
	TraceSize *int `json:"trace_size,omitempty"`

	// HeartbeatInterval governs client heartbeat emission / timeout.
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"`
	// NetConnectorDelay is the minimum backoff between outbound connect attempts.
	NetConnectorDelay *string `json:"net_connector_delay,omitempty"`

	// PeriodicUpdateMillis is the scheduler's wake interval.
	PeriodicUpdateMillis *int `json:"periodic_update_millis,omitempty"`
	// JSONIntervalMillis is the minimum spacing between aircraft.json
	// (and related snapshot document) regenerations.
	JSONIntervalMillis *int `json:"json_interval_millis,omitempty"`

	// GlobeIndexEnabled turns on the tile index and its longer aircraft TTL.
	GlobeIndexEnabled *bool `json:"globe_index_enabled,omitempty"`
	// StatePersistenceEnabled turns on warm-restart trace/state dump.
	StatePersistenceEnabled *bool `json:"state_persistence_enabled,omitempty"`
}

// ptrString, ptrInt, ptrFloat64, ptrBool are small helpers for building
// configs programmatically (tests, defaults).
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int              { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }

// EmptyTrackerConfig returns a TrackerConfig with all fields nil, so that
// every Get* accessor falls back to its compiled-in default.
func EmptyTrackerConfig() *TrackerConfig {
	return &TrackerConfig{}
}

// DefaultTrackerConfig returns the compiled-in defaults named throughout
// spec.md (§3, §4.2, §4.3, §5).
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		TrackStale:              ptrString("60s"),
		TrackExpire:             ptrString("300s"),
		TrackExpireLong:         ptrString("600s"),
		AddrReliableWindow:      ptrString("45s"),
		MlatGuard:               ptrString("30s"),
		JaeroGuard:              ptrString("600s"),
		ReduceForwardInterval:   ptrString("5s"),
		FilterPersistence:       ptrInt(4),
		JSONReliable:            ptrInt(2),
		MaxRangeMeters:          ptrFloat64(0), // 0 = disabled
		ReceiverLat:             ptrFloat64(0),
		ReceiverLon:             ptrFloat64(0),
		JSONTraceInterval:       ptrString("1s"),
		TraceSize:               ptrInt(8500),
		HeartbeatInterval:       ptrString("90s"),
		NetConnectorDelay:       ptrString("15s"),
		PeriodicUpdateMillis:    ptrInt(200),
		JSONIntervalMillis:      ptrInt(1000),
		GlobeIndexEnabled:       ptrBool(false),
		StatePersistenceEnabled: ptrBool(false),
	}
}

// LoadTrackerConfig loads a TrackerConfig from a JSON file, merging it over
// DefaultTrackerConfig. The file must have a .json extension and be under
// maxConfigFileSize.
func LoadTrackerConfig(path string) (*TrackerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultTrackerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that any duration-shaped or range-shaped fields parse
// and are within sane bounds.
func (c *TrackerConfig) Validate() error {
	for name, v := range map[string]*string{
		"track_stale":             c.TrackStale,
		"track_expire":            c.TrackExpire,
		"track_expire_long":       c.TrackExpireLong,
		"addr_reliable_window":    c.AddrReliableWindow,
		"mlat_guard":              c.MlatGuard,
		"jaero_guard":             c.JaeroGuard,
		"json_trace_interval":     c.JSONTraceInterval,
		"heartbeat_interval":      c.HeartbeatInterval,
		"net_connector_delay":     c.NetConnectorDelay,
		"reduce_forward_interval": c.ReduceForwardInterval,
	} {
		if v != nil && *v != "" {
			if _, err := time.ParseDuration(*v); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, *v, err)
			}
		}
	}
	if c.FilterPersistence != nil && *c.FilterPersistence < 1 {
		return fmt.Errorf("filter_persistence must be >= 1, got %d", *c.FilterPersistence)
	}
	if c.JSONReliable != nil && *c.JSONReliable < 1 {
		return fmt.Errorf("json_reliable must be >= 1, got %d", *c.JSONReliable)
	}
	if c.TraceSize != nil && *c.TraceSize < 4 {
		return fmt.Errorf("trace_size must be >= 4, got %d", *c.TraceSize)
	}
	return nil
}

func (c *TrackerConfig) durOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetTrackStale returns TrackStale or its default.
func (c *TrackerConfig) GetTrackStale() time.Duration { return c.durOr(c.TrackStale, 60*time.Second) }

// GetTrackExpire returns TrackExpire or its default.
func (c *TrackerConfig) GetTrackExpire() time.Duration {
	return c.durOr(c.TrackExpire, 300*time.Second)
}

// GetTrackExpireLong returns TrackExpireLong or its default.
func (c *TrackerConfig) GetTrackExpireLong() time.Duration {
	return c.durOr(c.TrackExpireLong, 600*time.Second)
}

// GetAddrReliableWindow returns AddrReliableWindow or its default.
func (c *TrackerConfig) GetAddrReliableWindow() time.Duration {
	return c.durOr(c.AddrReliableWindow, 45*time.Second)
}

// GetMlatGuard returns MlatGuard or its default.
func (c *TrackerConfig) GetMlatGuard() time.Duration { return c.durOr(c.MlatGuard, 30*time.Second) }

// GetJaeroGuard returns JaeroGuard or its default.
func (c *TrackerConfig) GetJaeroGuard() time.Duration { return c.durOr(c.JaeroGuard, 600*time.Second) }

// GetReduceForwardInterval returns ReduceForwardInterval or its default.
func (c *TrackerConfig) GetReduceForwardInterval() time.Duration {
	return c.durOr(c.ReduceForwardInterval, 5*time.Second)
}

// GetFilterPersistence returns FilterPersistence or its default.
func (c *TrackerConfig) GetFilterPersistence() int {
	if c.FilterPersistence == nil {
		return 4
	}
	return *c.FilterPersistence
}

// GetJSONReliable returns JSONReliable or its default.
func (c *TrackerConfig) GetJSONReliable() int {
	if c.JSONReliable == nil {
		return 2
	}
	return *c.JSONReliable
}

// GetMaxRangeMeters returns MaxRangeMeters or its default (0 = disabled).
func (c *TrackerConfig) GetMaxRangeMeters() float64 {
	if c.MaxRangeMeters == nil {
		return 0
	}
	return *c.MaxRangeMeters
}

// GetReceiverLocation returns the configured fallback receiver lat/lon.
func (c *TrackerConfig) GetReceiverLocation() (lat, lon float64) {
	if c.ReceiverLat != nil {
		lat = *c.ReceiverLat
	}
	if c.ReceiverLon != nil {
		lon = *c.ReceiverLon
	}
	return lat, lon
}

// GetJSONTraceInterval returns JSONTraceInterval or its default.
func (c *TrackerConfig) GetJSONTraceInterval() time.Duration {
	return c.durOr(c.JSONTraceInterval, 1*time.Second)
}

// GetTraceSize returns TraceSize or its default.
func (c *TrackerConfig) GetTraceSize() int {
	if c.TraceSize == nil {
		return 8500
	}
	return *c.TraceSize
}

// GetHeartbeatInterval returns HeartbeatInterval or its default.
func (c *TrackerConfig) GetHeartbeatInterval() time.Duration {
	return c.durOr(c.HeartbeatInterval, 90*time.Second)
}

// GetNetConnectorDelay returns NetConnectorDelay or its default.
func (c *TrackerConfig) GetNetConnectorDelay() time.Duration {
	return c.durOr(c.NetConnectorDelay, 15*time.Second)
}

// GetPeriodicUpdateMillis returns PeriodicUpdateMillis or its default.
func (c *TrackerConfig) GetPeriodicUpdateMillis() int {
	if c.PeriodicUpdateMillis == nil {
		return 200
	}
	return *c.PeriodicUpdateMillis
}

// GetJSONIntervalMillis returns JSONIntervalMillis or its default.
func (c *TrackerConfig) GetJSONIntervalMillis() int {
	if c.JSONIntervalMillis == nil {
		return 1000
	}
	return *c.JSONIntervalMillis
}

// GetGlobeIndexEnabled returns GlobeIndexEnabled or its default.
func (c *TrackerConfig) GetGlobeIndexEnabled() bool {
	if c.GlobeIndexEnabled == nil {
		return false
	}
	return *c.GlobeIndexEnabled
}

// GetStatePersistenceEnabled returns StatePersistenceEnabled or its default.
func (c *TrackerConfig) GetStatePersistenceEnabled() bool {
	if c.StatePersistenceEnabled == nil {
		return false
	}
	return *c.StatePersistenceEnabled
}

// AircraftTimeout returns the removal timeout for an aircraft given whether
// it ever had a position, per spec.md §3 Lifecycle.
func (c *TrackerConfig) AircraftTimeout(hadPosition, nonICAO bool) time.Duration {
	switch {
	case !hadPosition:
		if nonICAO {
			return 2 * time.Minute
		}
		return 5 * time.Minute
	case c.GetStatePersistenceEnabled():
		return 14 * 24 * time.Hour
	case c.GetGlobeIndexEnabled():
		return 26 * time.Hour
	default:
		if nonICAO {
			return 30 * time.Minute
		}
		return time.Hour
	}
}
