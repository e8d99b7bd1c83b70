package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FramingMode is a service's inbound/outbound framing discipline, per
// spec.md §4.1.
type FramingMode string

const (
	FramingIgnore       FramingMode = "ignore"
	FramingASCII        FramingMode = "ascii"
	FramingBeast        FramingMode = "beast"
	FramingBeastCommand FramingMode = "beast_command"
	FramingSBS          FramingMode = "sbs"
)

// ListenerSpec describes one inbound listener.
type ListenerSpec struct {
	Name    string      `json:"name"`
	Addr    string      `json:"addr"` // host:port
	Framing FramingMode `json:"framing"`
}

// ConnectorSpec describes one outbound connector (spec.md §4.1).
type ConnectorSpec struct {
	Name     string      `json:"name"`
	Host     string      `json:"host"`
	Port     int         `json:"port"`
	Framing  FramingMode `json:"framing"`
	UUIDHook bool        `json:"uuid_hook"` // send an E4 UUID frame on connect
}

// ServiceConfig is the CLI-described topology of the process: listeners,
// connectors, and output directories (spec.md §6 "Environment / filesystem
// layout").
type ServiceConfig struct {
	Listeners  []ListenerSpec  `json:"listeners"`
	Connectors []ConnectorSpec `json:"connectors"`

	JSONDir         string `json:"json_dir"`
	GlobeHistoryDir string `json:"globe_history_dir"`
	StateDir        string `json:"state_dir"`
	HeatmapDir      string `json:"heatmap_dir"`

	GRPCAddr  string `json:"grpc_addr"`
	DebugAddr string `json:"debug_addr"`

	SQLiteStatePath string `json:"sqlite_state_path"`

	// ReceiverGPSPort, if set, is a serial device path from which the
	// receiver reads NMEA sentences to self-localize (internal/receiverloc).
	ReceiverGPSPort string `json:"receiver_gps_port"`

	// MetadataPath is the external aircraft-metadata database file
	// (spec.md §1 lists it as an out-of-scope collaborator, a CSV of
	// "hex,registration,typecode" rows this process only reads and
	// hot-reloads, never writes).
	MetadataPath string `json:"metadata_path"`
}

// DefaultServiceConfig returns a minimal, locally-useful topology: Beast-in,
// raw ASCII-in, SBS-in and Beast-out listeners, JSON output under ./data.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Listeners: []ListenerSpec{
			{Name: "beast-in", Addr: ":30005", Framing: FramingBeast},
			{Name: "raw-in", Addr: ":30002", Framing: FramingASCII},
			{Name: "sbs-in", Addr: ":30003", Framing: FramingSBS},
			{Name: "beast-out", Addr: ":30104", Framing: FramingBeast},
		},
		JSONDir:         "data/json",
		GlobeHistoryDir: "data/globe_history",
		StateDir:        "data/internal_state",
		HeatmapDir:      "data/heatmap",
		GRPCAddr:        ":30151",
		DebugAddr:       "localhost:30152",
		SQLiteStatePath: "data/tracker.db",
		MetadataPath:    "data/aircraft_metadata.csv",
	}
}

// LoadServiceConfig loads a ServiceConfig from a JSON file, merged over
// DefaultServiceConfig's directory defaults (listeners/connectors are
// replaced wholesale if present in the file, since partial-merge doesn't
// make sense for a list of endpoints).
func LoadServiceConfig(path string) (*ServiceConfig, error) {
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
	cfg := DefaultServiceConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return cfg, nil
}
