package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdbias/metadyn/pkg/cv"
)

func openSpace1D() cv.Space { return cv.Space{cv.NewValue("d1")} }

func TestLayoutNodeCounts(t *testing.T) {
	// open dimensions materialize the upper boundary node, periodic ones
	// wrap instead
	space := cv.Space{cv.NewValue("x"), cv.NewPeriodicValue("phi", -math.Pi, math.Pi)}
	g, err := NewDense(space, []float64{0, -math.Pi}, []float64{1, math.Pi}, []int{10, 12}, false)
	require.NoError(t, err)
	assert.Equal(t, 11*12, g.Len())
}

func TestLayoutValidation(t *testing.T) {
	space := openSpace1D()
	_, err := NewDense(space, []float64{0}, []float64{1}, []int{0}, false)
	assert.Error(t, err)
	_, err = NewDense(space, []float64{1}, []float64{0}, []int{10}, false)
	assert.Error(t, err)
	_, err = NewDense(space, []float64{0, 0}, []float64{1}, []int{10}, false)
	assert.Error(t, err)
}

func TestPointRoundTrip(t *testing.T) {
	space := cv.Space{cv.NewValue("a"), cv.NewValue("b")}
	g, err := NewDense(space, []float64{0, -1}, []float64{2, 1}, []int{4, 8}, false)
	require.NoError(t, err)

	p := make([]float64, 2)
	g.Point(0, p)
	assert.Equal(t, []float64{0, -1}, p)
	g.Point(g.Len()-1, p)
	assert.InDelta(t, 2.0, p[0], 1e-12)
	assert.InDelta(t, 1.0, p[1], 1e-12)
}

func TestDenseSparseAgree(t *testing.T) {
	space := cv.Space{cv.NewValue("a"), cv.NewPeriodicValue("b", 0, 1)}
	min := []float64{0, 0}
	max := []float64{1, 1}
	bins := []int{5, 5}

	dense, err := NewDense(space, min, max, bins, true)
	require.NoError(t, err)
	sparse, err := NewSparse(space, min, max, bins, true)
	require.NoError(t, err)

	for i := 0; i < dense.Len(); i += 3 {
		der := []float64{float64(i) * 0.1, -float64(i) * 0.2}
		dense.AddValueAndDerivatives(i, float64(i), der)
		sparse.AddValueAndDerivatives(i, float64(i), der)
	}

	pts := [][]float64{{0.13, 0.71}, {0.5, 0.5}, {0.99, 0.02}}
	for _, p := range pts {
		dd := make([]float64, 2)
		sd := make([]float64, 2)
		vd, err := dense.ValueAndDerivatives(p, dd)
		require.NoError(t, err)
		vs, err := sparse.ValueAndDerivatives(p, sd)
		require.NoError(t, err)
		assert.InDelta(t, vd, vs, 1e-12)
		assert.InDelta(t, dd[0], sd[0], 1e-12)
		assert.InDelta(t, dd[1], sd[1], 1e-12)
	}
}

func TestNearestLookup(t *testing.T) {
	g, err := NewDense(openSpace1D(), []float64{0}, []float64{1}, []int{10}, false)
	require.NoError(t, err)
	g.AddValueAndDerivatives(3, 7.0, []float64{2.0})

	// 0.32 rounds to node 3 at x=0.3
	der := []float64{0}
	v, err := g.ValueAndDerivatives([]float64{0.32}, der)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	assert.Equal(t, 2.0, der[0])

	v, err = g.Value([]float64{0.38})
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestSplineReproducesNodes(t *testing.T) {
	g, err := NewDense(openSpace1D(), []float64{0}, []float64{1}, []int{10}, true)
	require.NoError(t, err)

	// store samples of f(x) = sin(2πx) with exact derivatives
	p := make([]float64, 1)
	for i := 0; i < g.Len(); i++ {
		g.Point(i, p)
		g.AddValueAndDerivatives(i, math.Sin(2*math.Pi*p[0]), []float64{2 * math.Pi * math.Cos(2*math.Pi*p[0])})
	}

	// nodes reproduce exactly, midpoints within the cubic error bound
	der := []float64{0}
	for i := 0; i < g.Len(); i++ {
		g.Point(i, p)
		v, err := g.ValueAndDerivatives(p, der)
		require.NoError(t, err)
		assert.InDelta(t, math.Sin(2*math.Pi*p[0]), v, 1e-12)
		assert.InDelta(t, 2*math.Pi*math.Cos(2*math.Pi*p[0]), der[0], 1e-9)
	}
	for _, x := range []float64{0.05, 0.23, 0.61, 0.97} {
		v, err := g.Value([]float64{x})
		require.NoError(t, err)
		assert.InDelta(t, math.Sin(2*math.Pi*x), v, 1e-3)
	}
}

func TestLookupOutsideOpenBounds(t *testing.T) {
	g, err := NewDense(openSpace1D(), []float64{0}, []float64{1}, []int{10}, true)
	require.NoError(t, err)
	_, err = g.Value([]float64{1.5})
	assert.Error(t, err)
}

func TestNeighborsOpen(t *testing.T) {
	g, err := NewDense(openSpace1D(), []float64{0}, []float64{1}, []int{10}, false)
	require.NoError(t, err)

	// near the lower edge the window is clipped
	nb, err := g.Neighbors([]float64{0.05}, []int{2})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3}, nb)

	nb, err = g.Neighbors([]float64{0.55}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 6, 7}, nb)
}

func TestNeighborsPeriodicWrap(t *testing.T) {
	space := cv.Space{cv.NewPeriodicValue("phi", 0, 1)}
	g, err := NewDense(space, []float64{0}, []float64{1}, []int{10}, false)
	require.NoError(t, err)

	nb, err := g.Neighbors([]float64{0.01}, []int{2})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{8, 9, 0, 1, 2, 3}, nb)

	// a window spanning the whole dimension visits each node exactly once
	nb, err = g.Neighbors([]float64{0.5}, []int{7})
	require.NoError(t, err)
	assert.Len(t, nb, 10)
	seen := make(map[int]bool)
	for _, i := range nb {
		assert.False(t, seen[i])
		seen[i] = true
	}
}
