package marker

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func square(x, y, side float64) []r2.Vec {
	return []r2.Vec{{X: x, Y: y}, {X: x + side, Y: y}, {X: x + side, Y: y + side}, {X: x, Y: y + side}}
}

func TestNormalizeKeepsFourPoints(t *testing.T) {
	poly := []r2.Vec{{X: 10, Y: 10}, {X: 5, Y: 40}, {X: 50, Y: 45}, {X: 40, Y: 5}}
	q, err := Normalizer{}.Normalize(poly)
	require.NoError(t, err)
	if diff := cmp.Diff(Quad(poly), q); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}

	// The result must not alias the caller's slice.
	q[0] = r2.Vec{X: -1, Y: -1}
	assert.Equal(t, r2.Vec{X: 10, Y: 10}, poly[0])
}

func TestNormalizeReducesToHull(t *testing.T) {
	poly := []r2.Vec{
		{X: 0, Y: 0}, {X: 50, Y: 0}, {X: 100, Y: 0}, // collinear midpoint
		{X: 100, Y: 100}, {X: 40, Y: 60}, // interior point
		{X: 0, Y: 100},
	}
	q, err := Normalizer{}.Normalize(poly)
	require.NoError(t, err)
	require.Len(t, q, 4)
	assert.ElementsMatch(t, square(0, 0, 100), []r2.Vec(q))

	side, err := SideLength(q)
	require.NoError(t, err)
	assert.InDelta(t, 100, side, 1e-9)
}

func TestNormalizeRejectsNonQuadHulls(t *testing.T) {
	t.Run("too few points", func(t *testing.T) {
		_, err := Normalizer{}.Normalize([]r2.Vec{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}})
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
	})

	t.Run("triangle hull", func(t *testing.T) {
		poly := []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}, {X: 10, Y: 10}, {X: 20, Y: 20}}
		_, err := Normalizer{}.Normalize(poly)
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
		_, err = Normalizer{LegacyHullIndexing: true}.Normalize(poly)
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
	})

	t.Run("pentagon hull", func(t *testing.T) {
		poly := []r2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 120, Y: 60}, {X: 50, Y: 110}, {X: -20, Y: 60}}
		_, err := Normalizer{}.Normalize(poly)
		assert.ErrorIs(t, err, ErrDegenerateGeometry)

		q, err := Normalizer{LegacyHullIndexing: true}.Normalize(poly)
		require.NoError(t, err)
		assert.Len(t, q, 5)
		_, err = SideLength(q)
		assert.NoError(t, err, "legacy hulls still yield a side length")
	})

	t.Run("collinear points", func(t *testing.T) {
		poly := []r2.Vec{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}, {X: 4, Y: 4}}
		_, err := Normalizer{}.Normalize(poly)
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
	})
}

func TestConvexHullOrder(t *testing.T) {
	hull := ConvexHull([]r2.Vec{{X: 1, Y: 1}, {X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}, {X: 0, Y: 0}})
	want := []r2.Vec{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}
	if diff := cmp.Diff(want, hull); diff != "" {
		t.Errorf("ConvexHull() mismatch (-want +got):\n%s", diff)
	}
}

func TestSideLengthUsesLongestEdge(t *testing.T) {
	// Trapezoid seen at an angle: the near edge is longest.
	q := Quad{{X: 0, Y: 0}, {X: 300, Y: 0}, {X: 250, Y: 200}, {X: 50, Y: 200}}
	side, err := SideLength(q)
	require.NoError(t, err)
	assert.InDelta(t, 300, side, 1e-9)
}

func TestSideLengthIsEdgeOrderInvariant(t *testing.T) {
	base := Quad{{X: 12, Y: 7}, {X: 318, Y: 20}, {X: 290, Y: 301}, {X: 3, Y: 280}}
	want, err := SideLength(base)
	require.NoError(t, err)

	for shift := 1; shift < 4; shift++ {
		rotated := append(Quad{}, base[shift:]...)
		rotated = append(rotated, base[:shift]...)
		got, err := SideLength(rotated)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12, "shift %d", shift)
	}

	reversed := Quad{base[3], base[2], base[1], base[0]}
	got, err := SideLength(reversed)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-12)
}

func TestSideLengthRejectsDegenerateQuads(t *testing.T) {
	p := r2.Vec{X: 42, Y: 42}
	_, err := SideLength(Quad{p, p, p, p})
	assert.ErrorIs(t, err, ErrDegenerateGeometry)

	_, err = SideLength(Quad{p, p})
	assert.ErrorIs(t, err, ErrDegenerateGeometry)

	nan := r2.Vec{X: math.NaN(), Y: 0}
	_, err = SideLength(Quad{nan, p, p, p})
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
}

func TestCentroid(t *testing.T) {
	assert.Equal(t, r2.Vec{X: 150, Y: 150}, Quad(square(0, 0, 300)).Centroid())
	assert.Equal(t, r2.Vec{}, Quad(nil).Centroid())
}
