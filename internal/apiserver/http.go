package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/flightdeck/trackerd/internal/security"

	"tailscale.com/tsweb"
)

// AttachRoutes mounts the public snapshot-document file server plus a
// small debug surface under mux, grounded on the teacher's
// store.DB.AttachAdminRoutes (tsweb.Debugger(mux) plus a handful of
// debug.Handle calls) -- the same admin-route idiom, applied to serving
// aircraft.json/globe_*/vrs.json/stats.json instead of a SQL console.
func AttachRoutes(mux *http.ServeMux, jsonDir, globeHistoryDir string, publisher *Publisher) {
	fileServer := http.FileServer(http.Dir(jsonDir))
	mux.Handle("/data/", http.StripPrefix("/data/", fileServer))

	debug := tsweb.Debugger(mux)
	if publisher != nil {
		debug.Handle("apiserver-stats", "Live-stream publisher stats (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(publisherStats{
				BatchCount:  publisher.batchCount.Load(),
				ClientCount: publisher.clientCount.Load(),
				Running:     publisher.running.Load(),
			})
		}))
	}

	debug.Handle("trace-history", "Fetch one aircraft's per-day trace history by hex/date", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serveTraceHistory(w, r, globeHistoryDir)
	}))
}

// serveTraceHistory resolves the trace_history/<hex>/<date>.json.gz file an
// operator requests by query params, grounded on internal/trace.WriteHistorical's
// path shape. hex/date are attacker-controlled request input, unlike the
// addrHex this package builds internally elsewhere, so the resolved path is
// checked against globeHistoryDir with internal/security.ValidatePathWithinDirectory
// before serving -- the same traversal guard the teacher applies to its own
// request-driven file paths.
func serveTraceHistory(w http.ResponseWriter, r *http.Request, globeHistoryDir string) {
	hex := r.URL.Query().Get("hex")
	date := r.URL.Query().Get("date")
	if hex == "" || date == "" {
		http.Error(w, "hex and date query params are required", http.StatusBadRequest)
		return
	}

	path := filepath.Join(globeHistoryDir, hex, fmt.Sprintf("%s.json.gz", date))
	if err := security.ValidatePathWithinDirectory(path, globeHistoryDir); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, path)
}

// publisherStats is the JSON shape for the apiserver-stats debug route.
type publisherStats struct {
	BatchCount  uint64 `json:"batch_count"`
	ClientCount int32  `json:"client_count"`
	Running     bool   `json:"running"`
}
