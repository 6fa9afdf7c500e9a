package spatial

import (
	"math"
	"sort"
)

// Entry is one indexed record.
type Entry struct {
	ID string
	Pt Point
}

// GridIndex is a uniform-grid proximity index. Nearest and Within run in
// expected sublinear time for reasonably distributed data; results are
// deterministic, with equidistant nearest candidates resolved to the
// lexicographically smaller ID within the configured tolerance.
//
// The index is immutable after construction. Rebuilding from the same
// entries yields an equivalent index.
type GridIndex struct {
	cellSize  float64
	tolerance float64
	minX      float64
	minY      float64
	spanCells int
	cells     map[[2]int][]Entry
	count     int
}

// NewGridIndex builds an index over entries. tolerance is the distance delta
// under which two candidates count as equidistant.
func NewGridIndex(entries []Entry, tolerance float64) *GridIndex {
	idx := &GridIndex{
		cellSize:  1,
		tolerance: tolerance,
		cells:     make(map[[2]int][]Entry),
	}
	if len(entries) == 0 {
		return idx
	}

	minX, minY := entries[0].Pt.X, entries[0].Pt.Y
	maxX, maxY := minX, minY
	for _, e := range entries[1:] {
		minX = math.Min(minX, e.Pt.X)
		minY = math.Min(minY, e.Pt.Y)
		maxX = math.Max(maxX, e.Pt.X)
		maxY = math.Max(maxY, e.Pt.Y)
	}

	span := math.Max(maxX-minX, maxY-minY)
	side := math.Ceil(math.Sqrt(float64(len(entries))))
	if span > 0 && side > 0 {
		idx.cellSize = span / side
	}
	idx.minX = minX
	idx.minY = minY
	idx.spanCells = int(span/idx.cellSize) + 1

	for _, e := range entries {
		key := idx.cellOf(e.Pt)
		idx.cells[key] = append(idx.cells[key], e)
	}
	idx.count = len(entries)
	return idx
}

// Len returns the number of indexed entries.
func (g *GridIndex) Len() int {
	return g.count
}

func (g *GridIndex) cellOf(p Point) [2]int {
	return [2]int{
		int(math.Floor((p.X - g.minX) / g.cellSize)),
		int(math.Floor((p.Y - g.minY) / g.cellSize)),
	}
}

// Nearest returns the entry closest to p and its distance. The boolean is
// false when the index is empty. Ties within tolerance go to the smaller ID.
func (g *GridIndex) Nearest(p Point) (Entry, float64, bool) {
	if g.count == 0 {
		return Entry{}, 0, false
	}

	// Clamp the start cell into the occupied grid so a far-away query point
	// still reaches every cell within spanCells rings.
	center := g.cellOf(p)
	center[0] = clamp(center[0], 0, g.spanCells)
	center[1] = clamp(center[1], 0, g.spanCells)

	var best Entry
	bestDist := math.Inf(1)
	found := false

	// Expanding ring search: after a candidate is found, rings are scanned
	// until their minimum possible distance exceeds the best distance.
	maxRing := g.spanCells + 2
	for ring := 0; ring <= maxRing; ring++ {
		if found && float64(ring-1)*g.cellSize > bestDist+g.tolerance {
			break
		}
		g.scanRing(center, ring, func(e Entry) {
			d := Distance(p, e.Pt)
			switch {
			case !found || d < bestDist-g.tolerance:
				best, bestDist, found = e, d, true
			case math.Abs(d-bestDist) <= g.tolerance && e.ID < best.ID:
				best, bestDist = e, d
			}
		})
	}

	if !found {
		return Entry{}, 0, false
	}
	return best, bestDist, true
}

// scanRing visits every entry in the square ring of the given radius around
// center.
func (g *GridIndex) scanRing(center [2]int, ring int, visit func(Entry)) {
	if ring == 0 {
		for _, e := range g.cells[center] {
			visit(e)
		}
		return
	}
	for dx := -ring; dx <= ring; dx++ {
		for dy := -ring; dy <= ring; dy++ {
			if maxAbs(dx, dy) != ring {
				continue
			}
			key := [2]int{center[0] + dx, center[1] + dy}
			for _, e := range g.cells[key] {
				visit(e)
			}
		}
	}
}

// Within returns every entry at distance <= radius from p, sorted by ID.
func (g *GridIndex) Within(p Point, radius float64) []Entry {
	if g.count == 0 || radius < 0 {
		return nil
	}

	lo := g.cellOf(Point{X: p.X - radius, Y: p.Y - radius})
	hi := g.cellOf(Point{X: p.X + radius, Y: p.Y + radius})

	var out []Entry
	for cx := lo[0]; cx <= hi[0]; cx++ {
		for cy := lo[1]; cy <= hi[1]; cy++ {
			for _, e := range g.cells[[2]int{cx, cy}] {
				if Distance(p, e.Pt) <= radius {
					out = append(out, e)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxAbs(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	if a > b {
		return a
	}
	return b
}
