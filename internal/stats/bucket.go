// Package stats maintains the rolling message/position/range counters
// named in spec.md §4.7 "Stats": ten-second buckets held in a ring of 90
// (15 minutes), rolled up into 1-min/5-min/15-min/alltime windows, and
// exported as both a structured JSON document and Prometheus text.
package stats

import (
	"sort"
	"sync"
	"time"

	"github.com/flightdeck/trackerd/internal/message"
	"gonum.org/v1/gonum/stat"
)

// BucketSeconds is the width of one stats bucket (spec.md §4.7).
const BucketSeconds = 10

// RingSize is the number of completed buckets retained, covering the
// full 15-minute window spec.md §4.7 names.
const RingSize = 90

// bucket accumulates pure-increment counters and raw samples for one
// BucketSeconds window. Gauges (range/signal extremes and quantiles) are
// reduced from the raw samples at roll-over, mirroring the teacher's
// db.go RadarObjectsRollupRow aggregation (bucket by start time, collect
// samples, then sort+stat.Quantile once per bucket).
type bucket struct {
	startUnix int64

	messagesTotal    int64
	messagesBySource [int(message.Prio) + 1]int64

	cprAccepted int64
	cprRejected int64

	positionsGlobal int64
	positionsLocal  int64

	bytesForwarded int64

	rangeSamples  []float64
	signalSamples []float64
}

func newBucket(start int64) *bucket {
	return &bucket{startUnix: start}
}

// Snapshot is a rolled-up, immutable view of one completed bucket or a
// merged window of buckets, in gonum/db.go's sorted-then-quantile style.
type Snapshot struct {
	StartUnix            int64
	EndUnix              int64
	MessagesTotal        int64
	MessagesBySource     map[string]int64
	CPRAccepted          int64
	CPRRejected          int64
	PositionsGlobal      int64
	PositionsLocal       int64
	BytesForwarded       int64
	AircraftTracked      int64
	AircraftWithPosition int64
	MaxRangeM            float64
	P50RangeM            float64
	P95RangeM            float64
	MaxSignalDB          float64
	P95SignalDB          float64
	// RangeHistogramM holds counts per RangeHistogramBinM-wide bin,
	// spec.md §4.7's "histogram of receiver range".
	RangeHistogramM []int64
}

// RangeHistogramBinM is the bin width of the receiver-range histogram.
const RangeHistogramBinM = 10000 // 10 km bins

// RangeHistogramBins is the number of bins the histogram covers (the top
// bin collects every sample at or beyond 490 km).
const RangeHistogramBins = 50

func quantiles(samples []float64) (max, p50, p95 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	max = sorted[len(sorted)-1]
	p50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return max, p50, p95
}

func (b *bucket) snapshot(aircraftTracked, aircraftWithPosition int64) Snapshot {
	maxRange, p50Range, p95Range := quantiles(b.rangeSamples)
	maxSignal, _, p95Signal := quantiles(b.signalSamples)

	bySource := make(map[string]int64)
	for src, count := range b.messagesBySource {
		if count == 0 {
			continue
		}
		bySource[message.Source(src).String()] = count
	}

	hist := make([]int64, RangeHistogramBins)
	for _, r := range b.rangeSamples {
		i := int(r / RangeHistogramBinM)
		if i >= RangeHistogramBins {
			i = RangeHistogramBins - 1
		}
		if i < 0 {
			i = 0
		}
		hist[i]++
	}

	return Snapshot{
		StartUnix:            b.startUnix,
		EndUnix:              b.startUnix + BucketSeconds,
		MessagesTotal:        b.messagesTotal,
		MessagesBySource:     bySource,
		CPRAccepted:          b.cprAccepted,
		CPRRejected:          b.cprRejected,
		PositionsGlobal:      b.positionsGlobal,
		PositionsLocal:       b.positionsLocal,
		BytesForwarded:       b.bytesForwarded,
		AircraftTracked:      aircraftTracked,
		AircraftWithPosition: aircraftWithPosition,
		MaxRangeM:            maxRange,
		P50RangeM:            p50Range,
		P95RangeM:            p95Range,
		MaxSignalDB:          maxSignal,
		P95SignalDB:          p95Signal,
		RangeHistogramM:      hist,
	}
}

// merge folds a slice of completed-bucket snapshots into one running-sum
// snapshot, used to build the 1-min/5-min/15-min windows (spec.md §4.7
// "merged ... on each roll-over"). P50/P95 are per-bucket gauges only
// (the raw samples backing them aren't retained once a bucket closes),
// so merged windows report only the counters, the window max, and the
// summed histogram -- a deliberate simplification over recomputing exact
// window-wide quantiles, noted in DESIGN.md.
func merge(windows []Snapshot) Snapshot {
	var m Snapshot
	m.MessagesBySource = make(map[string]int64)
	hist := make([]int64, RangeHistogramBins)

	for _, w := range windows {
		m.MessagesTotal += w.MessagesTotal
		m.CPRAccepted += w.CPRAccepted
		m.CPRRejected += w.CPRRejected
		m.PositionsGlobal += w.PositionsGlobal
		m.PositionsLocal += w.PositionsLocal
		m.BytesForwarded += w.BytesForwarded
		for src, count := range w.MessagesBySource {
			m.MessagesBySource[src] += count
		}
		if w.MaxRangeM > m.MaxRangeM {
			m.MaxRangeM = w.MaxRangeM
		}
		if w.MaxSignalDB > m.MaxSignalDB {
			m.MaxSignalDB = w.MaxSignalDB
		}
		for i, c := range w.RangeHistogramM {
			if i < len(hist) {
				hist[i] += c
			}
		}
		if w.AircraftTracked > m.AircraftTracked {
			m.AircraftTracked = w.AircraftTracked
		}
		if w.AircraftWithPosition > m.AircraftWithPosition {
			m.AircraftWithPosition = w.AircraftWithPosition
		}
	}
	m.RangeHistogramM = hist
	return m
}

// Collector is the live, lock-guarded accumulator the tracker and
// ingest paths report into; Rollover is called once per BucketSeconds by
// the scheduler's coarse tick.
type Collector struct {
	mu sync.Mutex

	current  *bucket
	ring     [RingSize]*bucket
	ringHead int
	ringLen  int

	alltime Snapshot

	aircraftTracked      int64
	aircraftWithPosition int64
}

// NewCollector creates an empty Collector with its first bucket starting
// at now.
func NewCollector(now time.Time) *Collector {
	c := &Collector{current: newBucket(bucketStart(now))}
	c.alltime.MessagesBySource = make(map[string]int64)
	return c
}

func bucketStart(t time.Time) int64 {
	u := t.Unix()
	return u - (u % BucketSeconds)
}

// IncMessage records one received message from src.
func (c *Collector) IncMessage(src message.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.messagesTotal++
	if int(src) >= 0 && int(src) < len(c.current.messagesBySource) {
		c.current.messagesBySource[src]++
	}
}

// IncCPR records one CPR decode outcome.
func (c *Collector) IncCPR(accepted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if accepted {
		c.current.cprAccepted++
	} else {
		c.current.cprRejected++
	}
}

// IncPosition records one accepted position, tagged by whether it came
// from a global (even/odd CPR pair) or local (surface/relative) decode.
func (c *Collector) IncPosition(global bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if global {
		c.current.positionsGlobal++
	} else {
		c.current.positionsLocal++
	}
}

// AddBytesForwarded records bytes relayed to outbound connectors.
func (c *Collector) AddBytesForwarded(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.bytesForwarded += n
}

// ObserveRange records one receiver-range sample in meters.
func (c *Collector) ObserveRange(meters float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.rangeSamples = append(c.current.rangeSamples, meters)
}

// ObserveSignal records one RSSI sample in dB.
func (c *Collector) ObserveSignal(db float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.signalSamples = append(c.current.signalSamples, db)
}

// SetAircraftCounts records the live aircraft counts for the bucket
// about to close; the scheduler calls this right before Rollover using a
// registry scan.
func (c *Collector) SetAircraftCounts(tracked, withPosition int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aircraftTracked = tracked
	c.aircraftWithPosition = withPosition
}

// Rollover closes the current bucket, pushes it into the ring (evicting
// the oldest if full), folds it into the alltime aggregate, and starts a
// fresh bucket for now. It returns the just-closed bucket's snapshot so
// the caller can persist it (internal/store.DB.InsertStatsBucket).
func (c *Collector) Rollover(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	closed := c.current
	snap := closed.snapshot(c.aircraftTracked, c.aircraftWithPosition)

	c.ring[c.ringHead] = closed
	c.ringHead = (c.ringHead + 1) % RingSize
	if c.ringLen < RingSize {
		c.ringLen++
	}

	c.alltime.MessagesTotal += snap.MessagesTotal
	c.alltime.CPRAccepted += snap.CPRAccepted
	c.alltime.CPRRejected += snap.CPRRejected
	c.alltime.PositionsGlobal += snap.PositionsGlobal
	c.alltime.PositionsLocal += snap.PositionsLocal
	c.alltime.BytesForwarded += snap.BytesForwarded
	for src, count := range snap.MessagesBySource {
		c.alltime.MessagesBySource[src] += count
	}
	if snap.MaxRangeM > c.alltime.MaxRangeM {
		c.alltime.MaxRangeM = snap.MaxRangeM
	}
	if snap.MaxSignalDB > c.alltime.MaxSignalDB {
		c.alltime.MaxSignalDB = snap.MaxSignalDB
	}
	if c.alltime.RangeHistogramM == nil {
		c.alltime.RangeHistogramM = make([]int64, RangeHistogramBins)
	}
	for i, n := range snap.RangeHistogramM {
		c.alltime.RangeHistogramM[i] += n
	}

	c.current = newBucket(bucketStart(now))
	return snap
}

// windowSnapshots returns the last n completed buckets' snapshots, most
// recent last.
func (c *Collector) windowSnapshots(n int) []Snapshot {
	if n > c.ringLen {
		n = c.ringLen
	}
	out := make([]Snapshot, 0, n)
	idx := (c.ringHead - 1 + RingSize) % RingSize
	for i := 0; i < n; i++ {
		b := c.ring[idx]
		if b != nil {
			out = append(out, b.snapshot(c.aircraftTracked, c.aircraftWithPosition))
		}
		idx = (idx - 1 + RingSize) % RingSize
	}
	return out
}

const (
	oneMinBuckets  = 60 / BucketSeconds
	fiveMinBuckets = 5 * 60 / BucketSeconds
	allRingBuckets = RingSize
)

// Windows is the full set of rolled-up aggregates spec.md §4.7 names.
type Windows struct {
	OneMin  Snapshot
	FiveMin Snapshot
	Fifteen Snapshot
	AllTime Snapshot
	Current Snapshot
}

// Snapshot returns the current state of every window, for the stats.json
// / Prometheus exporters.
func (c *Collector) Snapshot(now time.Time) Windows {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Windows{
		OneMin:  merge(c.windowSnapshots(oneMinBuckets)),
		FiveMin: merge(c.windowSnapshots(fiveMinBuckets)),
		Fifteen: merge(c.windowSnapshots(allRingBuckets)),
		AllTime: c.alltime,
		Current: c.current.snapshot(c.aircraftTracked, c.aircraftWithPosition),
	}
}
