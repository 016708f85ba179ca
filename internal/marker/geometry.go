package marker

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"
)

// ErrDegenerateGeometry is returned when a marker outline cannot provide a
// usable scale: too few points, coincident points, or a hull that is not a
// quadrilateral.
var ErrDegenerateGeometry = errors.New("degenerate marker geometry")

// quadVertices is the number of corners of a marker outline.
const quadVertices = 4

// MinSideLengthPx is the smallest side length treated as non-degenerate.
const MinSideLengthPx = 1e-9

// Quad is a marker outline in cyclic order. It normally holds exactly four
// points; see Normalizer.LegacyHullIndexing for the exception.
type Quad []r2.Vec

// Normalizer reduces a detected polygon to a Quad.
type Normalizer struct {
	// LegacyHullIndexing keeps convex hulls with more than four vertices
	// instead of rejecting them. The side length of such a hull is then
	// measured over its first four vertices only, which is what older
	// releases did.
	LegacyHullIndexing bool
}

// Normalize returns the polygon unchanged when it has four points and its
// convex hull when it has more.
func (n Normalizer) Normalize(polygon []r2.Vec) (Quad, error) {
	switch {
	case len(polygon) < quadVertices:
		return nil, fmt.Errorf("%w: polygon has %d points", ErrDegenerateGeometry, len(polygon))
	case len(polygon) == quadVertices:
		return Quad(slices.Clone(polygon)), nil
	}

	hull := ConvexHull(polygon)
	if len(hull) < quadVertices {
		return nil, fmt.Errorf("%w: hull has %d vertices", ErrDegenerateGeometry, len(hull))
	}
	if len(hull) > quadVertices && !n.LegacyHullIndexing {
		return nil, fmt.Errorf("%w: hull has %d vertices, want %d", ErrDegenerateGeometry, len(hull), quadVertices)
	}
	return Quad(hull), nil
}

// ConvexHull returns the convex hull of points in counter-clockwise order
// (Andrew's monotone chain). Collinear and duplicate points are dropped.
func ConvexHull(points []r2.Vec) []r2.Vec {
	pts := slices.Clone(points)
	slices.SortFunc(pts, func(a, b r2.Vec) int {
		if a.X != b.X {
			return cmpFloat(a.X, b.X)
		}
		return cmpFloat(a.Y, b.Y)
	})
	pts = slices.Compact(pts)
	if len(pts) < 3 {
		return pts
	}

	hull := make([]r2.Vec, 0, 2*len(pts))
	// lower chain
	for _, p := range pts {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// upper chain
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	// last point repeats the first
	return hull[:len(hull)-1]
}

func turn(o, a, b r2.Vec) float64 {
	return r2.Cross(r2.Sub(a, o), r2.Sub(b, o))
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// SideLength returns the longest of the four edges i -> (i+1) mod 4.
// The longest edge is the one least shortened by perspective.
func SideLength(q Quad) (float64, error) {
	if len(q) < quadVertices {
		return 0, fmt.Errorf("%w: outline has %d points", ErrDegenerateGeometry, len(q))
	}
	longest := 0.0
	for i := 0; i < quadVertices; i++ {
		edge := r2.Norm(r2.Sub(q[(i+1)%quadVertices], q[i]))
		longest = math.Max(longest, edge)
	}
	if math.IsNaN(longest) || math.IsInf(longest, 0) || scalar.EqualWithinAbs(longest, 0, MinSideLengthPx) {
		return 0, fmt.Errorf("%w: side length %v px", ErrDegenerateGeometry, longest)
	}
	return longest, nil
}

// Centroid returns the mean of the outline's points.
func (q Quad) Centroid() r2.Vec {
	var sum r2.Vec
	for _, p := range q {
		sum = r2.Add(sum, p)
	}
	if len(q) == 0 {
		return sum
	}
	return r2.Scale(1/float64(len(q)), sum)
}
