package stats

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsPrefix pins chart JS/CSS to the public go-echarts asset
// mirror, matching the teacher's monitor.echarts_handlers.go so the debug
// dashboard renders without bundling static assets into this binary.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderDashboard renders an interactive HTML page summarizing w's four
// rolling windows, grounded on the teacher's
// internal/lidar/monitor.handleTrafficChart (NewBar plus
// components.Page, one AssetsHost-pinned bar series per metric group)
// generalized from LiDAR packet/point throughput to tracker message,
// position, and range/signal counters.
func RenderDashboard(rw http.ResponseWriter, w Windows, now time.Time) {
	labels := []string{"1min", "5min", "15min", "alltime"}
	windows := []Snapshot{w.OneMin, w.FiveMin, w.Fifteen, w.AllTime}

	traffic := charts.NewBar()
	traffic.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "trackerd traffic", Theme: "dark", Width: "900px", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Message Traffic", Subtitle: now.UTC().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	msgTotal := make([]opts.BarData, len(windows))
	cprAccepted := make([]opts.BarData, len(windows))
	cprRejected := make([]opts.BarData, len(windows))
	for i, s := range windows {
		msgTotal[i] = opts.BarData{Value: s.MessagesTotal}
		cprAccepted[i] = opts.BarData{Value: s.CPRAccepted}
		cprRejected[i] = opts.BarData{Value: s.CPRRejected}
	}
	traffic.SetXAxis(labels).
		AddSeries("messages", msgTotal, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("cpr_accepted", cprAccepted).
		AddSeries("cpr_rejected", cprRejected)

	aircraftCounts := charts.NewBar()
	aircraftCounts.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Aircraft Tracked"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	tracked := make([]opts.BarData, len(windows))
	withPos := make([]opts.BarData, len(windows))
	for i, s := range windows {
		tracked[i] = opts.BarData{Value: s.AircraftTracked}
		withPos[i] = opts.BarData{Value: s.AircraftWithPosition}
	}
	aircraftCounts.SetXAxis(labels).
		AddSeries("tracked", tracked).
		AddSeries("with_position", withPos)

	bySource := charts.NewBar()
	bySource.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "480px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Messages by Source (current bucket)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	sources := make([]string, 0, len(w.Current.MessagesBySource))
	for src := range w.Current.MessagesBySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	sourceData := make([]opts.BarData, len(sources))
	for i, src := range sources {
		sourceData[i] = opts.BarData{Value: w.Current.MessagesBySource[src]}
	}
	bySource.SetXAxis(sources).
		AddSeries("messages", sourceData, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(traffic, aircraftCounts, bySource)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		http.Error(rw, fmt.Sprintf("render stats dashboard: %v", err), http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = rw.Write(buf.Bytes())
}
