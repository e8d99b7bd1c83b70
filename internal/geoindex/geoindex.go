// Package geoindex maps a (lat, lon) position to a dense integer tile
// id: a fixed set of hand-authored rectangles covering busy/special
// regions, falling back to a uniform coarse grid over the rest of the
// globe (spec.md §4.4 "Tile index").
package geoindex

import "math"

// GridDegrees is GLOBE_INDEX_GRID: the size, in degrees, of each uniform
// grid cell outside the special rectangles.
const GridDegrees = 1.0

// LatMult is GLOBE_LAT_MULT: the multiplier used to fold a 2D grid
// (row, col) into a single integer alongside the special-rectangle IDs.
const LatMult = 1000

// specialReserved is how many low IDs are reserved for the special
// rectangle list (spec.md §4.4: "the first 1000 IDs are reserved").
const specialReserved = 1000

// Rect is one hand-authored special region. West > East indicates the
// rectangle wraps across the antimeridian.
type Rect struct {
	Name                     string
	South, West, North, East float64
}

func (r Rect) contains(lat, lon float64) bool {
	if lat < r.South || lat > r.North {
		return false
	}
	if r.West <= r.East {
		return lon >= r.West && lon <= r.East
	}
	// Antimeridian wrap: valid on either side.
	return lon >= r.West || lon <= r.East
}

// Index maps positions to tile ids against a fixed ordered list of
// special rectangles plus the uniform grid fallback.
type Index struct {
	rects []Rect
}

// New creates an Index with the given special rectangles, tested in
// order (first hit wins), per spec.md §4.4.
func New(rects []Rect) *Index {
	cp := make([]Rect, len(rects))
	copy(cp, rects)
	return &Index{rects: cp}
}

// DefaultRects is a small starter set of busy/special regions; real
// deployments supply their own list via New.
func DefaultRects() []Rect {
	return []Rect{
		{Name: "us-northeast", South: 36, West: -80, North: 45, East: -66},
		{Name: "europe-west", South: 43, West: -10, North: 55, East: 15},
		{Name: "pacific-antimeridian", South: -10, West: 170, North: 10, East: -170},
	}
}

// Lookup quantizes (lat, lon) to the grid, tests each special rectangle
// in order, and otherwise returns the uniform-grid id (spec.md §4.4).
func (idx *Index) Lookup(lat, lon float64) int {
	for _, r := range idx.rects {
		if r.contains(lat, lon) {
			return idx.rectID(r)
		}
	}
	row, col := quantize(lat, lon)
	return row*LatMult + col + specialReserved
}

func (idx *Index) rectID(r Rect) int {
	for i, rr := range idx.rects {
		if rr.Name == r.Name {
			return i
		}
	}
	return 0
}

func quantize(lat, lon float64) (row, col int) {
	row = int(math.Floor((lat + 90) / GridDegrees))
	col = int(math.Floor((lon + 180) / GridDegrees))
	return row, col
}

// Inverse recovers the (row, col) grid cell for a non-special tile id,
// satisfying the invariant "globe_index_index(index) yields the same
// index" (spec.md §8): re-deriving a tile id from the recovered row/col
// must produce the original id. Returns ok=false for ids in the
// special-rectangle reserved range.
func Inverse(id int) (row, col int, ok bool) {
	if id < specialReserved {
		return 0, 0, false
	}
	rest := id - specialReserved
	row = rest / LatMult
	col = rest % LatMult
	return row, col, true
}
