// Package spatial provides planar point math and a proximity-query index
// over canonical-SRID coordinates.
package spatial

import "math"

// Point is a position in canonical-SRID coordinate units (X = longitude,
// Y = latitude for geographic references).
type Point struct {
	X float64
	Y float64
}

// Distance returns the planar Euclidean distance between a and b. This is
// the same metric the store's geometry distance operator uses on the
// canonical reference, so index results and stored distances agree.
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Hypot(dx, dy)
}
