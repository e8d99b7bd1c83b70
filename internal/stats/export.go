package stats

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Document is the JSON shape of stats.json (spec.md §4.5/§4.7).
type Document struct {
	Now     float64 `json:"now"`
	OneMin  window  `json:"last_1min"`
	FiveMin window  `json:"last_5min"`
	Fifteen window  `json:"last_15min"`
	AllTime window  `json:"total"`
}

type window struct {
	Start                int64            `json:"start"`
	End                  int64            `json:"end"`
	MessagesTotal        int64            `json:"messages_total"`
	MessagesBySource     map[string]int64 `json:"messages_by_source,omitempty"`
	CPRAccepted          int64            `json:"cpr_accepted"`
	CPRRejected          int64            `json:"cpr_rejected"`
	PositionsGlobal      int64            `json:"positions_global"`
	PositionsLocal       int64            `json:"positions_local"`
	BytesForwarded       int64            `json:"bytes_forwarded"`
	AircraftTracked      int64            `json:"aircraft_tracked"`
	AircraftWithPosition int64            `json:"aircraft_with_position"`
	MaxRangeM            float64          `json:"max_range_m"`
	P50RangeM            float64          `json:"p50_range_m,omitempty"`
	P95RangeM            float64          `json:"p95_range_m,omitempty"`
	MaxSignalDB          float64          `json:"max_signal_db"`
	P95SignalDB          float64          `json:"p95_signal_db,omitempty"`
	RangeHistogramM      []int64          `json:"range_histogram_m,omitempty"`
}

func toWindow(s Snapshot) window {
	return window{
		Start:                s.StartUnix,
		End:                  s.EndUnix,
		MessagesTotal:        s.MessagesTotal,
		MessagesBySource:     s.MessagesBySource,
		CPRAccepted:          s.CPRAccepted,
		CPRRejected:          s.CPRRejected,
		PositionsGlobal:      s.PositionsGlobal,
		PositionsLocal:       s.PositionsLocal,
		BytesForwarded:       s.BytesForwarded,
		AircraftTracked:      s.AircraftTracked,
		AircraftWithPosition: s.AircraftWithPosition,
		MaxRangeM:            s.MaxRangeM,
		P50RangeM:            s.P50RangeM,
		P95RangeM:            s.P95RangeM,
		MaxSignalDB:          s.MaxSignalDB,
		P95SignalDB:          s.P95SignalDB,
		RangeHistogramM:      s.RangeHistogramM,
	}
}

// MarshalJSON builds stats.json's payload from w at time now.
func MarshalJSON(w Windows, now time.Time) ([]byte, error) {
	doc := Document{
		Now:     float64(now.UnixMilli()) / 1000.0,
		OneMin:  toWindow(w.OneMin),
		FiveMin: toWindow(w.FiveMin),
		Fifteen: toWindow(w.Fifteen),
		AllTime: toWindow(w.AllTime),
	}
	return json.Marshal(doc)
}

// MarshalPrometheus renders w as Prometheus text exposition format
// (spec.md §4.7 "a Prometheus text file"), one gauge/counter per window
// for the metrics a scrape-based dashboard would want.
func MarshalPrometheus(w Windows) []byte {
	var b strings.Builder

	writeWindow := func(label string, s Snapshot) {
		fmt.Fprintf(&b, "trackerd_messages_total{window=%q} %d\n", label, s.MessagesTotal)
		fmt.Fprintf(&b, "trackerd_cpr_accepted_total{window=%q} %d\n", label, s.CPRAccepted)
		fmt.Fprintf(&b, "trackerd_cpr_rejected_total{window=%q} %d\n", label, s.CPRRejected)
		fmt.Fprintf(&b, "trackerd_positions_global_total{window=%q} %d\n", label, s.PositionsGlobal)
		fmt.Fprintf(&b, "trackerd_positions_local_total{window=%q} %d\n", label, s.PositionsLocal)
		fmt.Fprintf(&b, "trackerd_bytes_forwarded_total{window=%q} %d\n", label, s.BytesForwarded)
		fmt.Fprintf(&b, "trackerd_aircraft_tracked{window=%q} %d\n", label, s.AircraftTracked)
		fmt.Fprintf(&b, "trackerd_aircraft_with_position{window=%q} %d\n", label, s.AircraftWithPosition)
		fmt.Fprintf(&b, "trackerd_max_range_meters{window=%q} %g\n", label, s.MaxRangeM)
		fmt.Fprintf(&b, "trackerd_p95_range_meters{window=%q} %g\n", label, s.P95RangeM)
		fmt.Fprintf(&b, "trackerd_max_signal_db{window=%q} %g\n", label, s.MaxSignalDB)

		sources := make([]string, 0, len(s.MessagesBySource))
		for src := range s.MessagesBySource {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		for _, src := range sources {
			fmt.Fprintf(&b, "trackerd_messages_by_source_total{window=%q,source=%q} %d\n", label, src, s.MessagesBySource[src])
		}
	}

	b.WriteString("# HELP trackerd_messages_total Total decoded messages.\n")
	b.WriteString("# TYPE trackerd_messages_total counter\n")
	b.WriteString("# HELP trackerd_aircraft_tracked Distinct aircraft seen in the window.\n")
	b.WriteString("# TYPE trackerd_aircraft_tracked gauge\n")

	writeWindow("1min", w.OneMin)
	writeWindow("5min", w.FiveMin)
	writeWindow("15min", w.Fifteen)
	writeWindow("alltime", w.AllTime)

	return []byte(b.String())
}
