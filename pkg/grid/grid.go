// Package grid provides the discretized scalar field backing grid-mode
// metadynamics: an N-dimensional array of nodes, each holding an
// accumulated value and one partial derivative per dimension.
//
// Two backings exist, dense and sparse, chosen at construction; they share
// all index math and interpolation so callers never branch on which one is
// active. Lookups are either nearest-node or tensor-product cubic Hermite
// ("spline") interpolation built from the stored node derivatives.
package grid

import (
	"io"
	"math"

	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
)

// Grid is the capability set shared by the dense and sparse backings.
type Grid interface {
	// Dim returns the number of dimensions.
	Dim() int
	// Len returns the total number of nodes.
	Len() int
	// Spacing returns the per-dimension node spacing.
	Spacing() []float64
	// Point writes the coordinates of the node with the given flat index
	// into dst.
	Point(index int, dst []float64)
	// Value returns the interpolated field value at x.
	Value(x []float64) (float64, error)
	// ValueAndDerivatives returns the interpolated value at x and writes
	// the gradient into der.
	ValueAndDerivatives(x []float64, der []float64) (float64, error)
	// AddValueAndDerivatives folds a contribution into one node.
	AddValueAndDerivatives(index int, v float64, der []float64)
	// ValueAt returns the raw value stored at a node.
	ValueAt(index int) float64
	// DerivativesAt writes the raw derivatives stored at a node into dst.
	DerivativesAt(index int, dst []float64)
	// Neighbors returns the flat indices of every node within the given
	// per-dimension window around center, with periodic wraparound.
	Neighbors(center []float64, window []int) ([]int, error)
	// WriteTo serializes the full grid in the snapshot text format.
	WriteTo(w io.Writer) error
}

// layout holds the geometry shared by both backings: bounds, bin counts,
// spacing, periodicity and the flat-index arithmetic over them.
type layout struct {
	space  cv.Space
	min    []float64
	max    []float64
	bins   []int // requested bins per dimension
	npts   []int // nodes per dimension: bins (periodic) or bins+1
	dx     []float64
	total  int
	spline bool
}

func newLayout(space cv.Space, min, max []float64, bins []int, spline bool) (*layout, error) {
	d := space.Dim()
	if len(min) != d || len(max) != d || len(bins) != d {
		return nil, errors.New(errors.ErrorTypeDimension, "grid bounds do not match the number of collective variables")
	}
	l := &layout{
		space:  space,
		min:    append([]float64(nil), min...),
		max:    append([]float64(nil), max...),
		bins:   append([]int(nil), bins...),
		npts:   make([]int, d),
		dx:     make([]float64, d),
		spline: spline,
		total:  1,
	}
	for i := 0; i < d; i++ {
		if bins[i] <= 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "grid dimension %s has a non-positive bin count", space[i].Name)
		}
		if max[i] <= min[i] {
			return nil, errors.Newf(errors.ErrorTypeConfig, "grid dimension %s has max <= min", space[i].Name)
		}
		l.dx[i] = (max[i] - min[i]) / float64(bins[i])
		l.npts[i] = bins[i]
		if !space[i].Periodic {
			// the upper boundary node is materialized on open dimensions
			l.npts[i]++
		}
		l.total *= l.npts[i]
	}
	return l, nil
}

func (l *layout) dim() int { return l.space.Dim() }

// flat converts multidimensional node indices to a flat index, first
// dimension slowest.
func (l *layout) flat(idx []int) int {
	f := idx[0]
	for i := 1; i < len(idx); i++ {
		f = f*l.npts[i] + idx[i]
	}
	return f
}

// indices converts a flat index back to per-dimension node indices.
func (l *layout) indices(flat int, dst []int) {
	for i := len(l.npts) - 1; i > 0; i-- {
		dst[i] = flat % l.npts[i]
		flat /= l.npts[i]
	}
	dst[0] = flat
}

func (l *layout) point(flat int, dst []float64) {
	idx := make([]int, l.dim())
	l.indices(flat, idx)
	for i := range idx {
		dst[i] = l.min[i] + float64(idx[i])*l.dx[i]
	}
}

// wrap folds a coordinate into the grid domain on periodic dimensions.
func (l *layout) wrap(i int, x float64) float64 {
	if !l.space[i].Periodic {
		return x
	}
	period := l.max[i] - l.min[i]
	x = math.Mod(x-l.min[i], period)
	if x < 0 {
		x += period
	}
	return x + l.min[i]
}

// cell locates the lower-corner node of the cell containing x and the
// fractional position inside it. Returns an error when x lies outside an
// open dimension.
func (l *layout) cell(x []float64, idx []int, frac []float64) error {
	for i := 0; i < l.dim(); i++ {
		xi := l.wrap(i, x[i])
		if !l.space[i].Periodic && (xi < l.min[i] || xi > l.max[i]) {
			return errors.Newf(errors.ErrorTypeNumerical, "point %g outside grid bounds on %s", x[i], l.space[i].Name)
		}
		t := (xi - l.min[i]) / l.dx[i]
		j := int(math.Floor(t))
		// the top boundary belongs to the last cell
		if j >= l.bins[i] {
			j = l.bins[i] - 1
		}
		if j < 0 {
			j = 0
		}
		idx[i] = j
		frac[i] = t - float64(j)
	}
	return nil
}

// nodeAbove returns the node index one step up from j along dimension i,
// wrapping on periodic dimensions.
func (l *layout) nodeAbove(i, j int) int {
	j++
	if l.space[i].Periodic && j >= l.npts[i] {
		j = 0
	}
	return j
}

func (l *layout) neighbors(center []float64, window []int) ([]int, error) {
	d := l.dim()
	if len(window) != d {
		return nil, errors.New(errors.ErrorTypeDimension, "neighbor window does not match grid dimension")
	}
	idx := make([]int, d)
	frac := make([]float64, d)
	if err := l.cell(center, idx, frac); err != nil {
		return nil, err
	}

	// per-dimension candidate node indices, wrapped or discarded at edges
	spans := make([][]int, d)
	for i := 0; i < d; i++ {
		if l.space[i].Periodic && 2*window[i]+2 >= l.npts[i] {
			// window wraps all the way around: visit each node once
			for j := 0; j < l.npts[i]; j++ {
				spans[i] = append(spans[i], j)
			}
			continue
		}
		for k := idx[i] - window[i]; k <= idx[i]+window[i]+1; k++ {
			j := k
			if l.space[i].Periodic {
				j = ((j % l.npts[i]) + l.npts[i]) % l.npts[i]
			} else if j < 0 || j >= l.npts[i] {
				continue
			}
			spans[i] = append(spans[i], j)
		}
	}

	total := 1
	for i := range spans {
		total *= len(spans[i])
	}
	out := make([]int, 0, total)
	pos := make([]int, d)
	node := make([]int, d)
	for n := 0; n < total; n++ {
		for i := 0; i < d; i++ {
			node[i] = spans[i][pos[i]]
		}
		out = append(out, l.flat(node))
		for i := d - 1; i >= 0; i-- {
			pos[i]++
			if pos[i] < len(spans[i]) {
				break
			}
			pos[i] = 0
		}
	}
	return out, nil
}
