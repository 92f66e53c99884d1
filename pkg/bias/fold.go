package bias

import (
	"math"

	"github.com/mdbias/metadyn/pkg/kernel"
)

// addKernel folds a new kernel into the active backing. In list mode it is
// an append; in grid mode every node inside the kernel's support window
// receives the kernel's value and gradient. When a process group larger
// than one is attached, the window nodes are partitioned round-robin across
// ranks and the partial contributions are sum-reduced before the add, so
// every rank applies identical totals.
func (m *Meta) addKernel(k *kernel.Kernel) error {
	if m.field == nil {
		m.kernels = append(m.kernels, k)
		return nil
	}

	d := m.space.Dim()
	window, err := m.supportWindow(k)
	if err != nil {
		return err
	}
	neighbors, err := m.field.Neighbors(k.Center, window)
	if err != nil {
		return err
	}

	x := make([]float64, d)
	if m.group.Size() == 1 {
		der := make([]float64, d)
		for _, node := range neighbors {
			for j := range der {
				der[j] = 0
			}
			m.field.Point(node, x)
			v := m.eval.Evaluate(x, k, der)
			m.field.AddValueAndDerivatives(node, v, der)
		}
		return nil
	}

	stride := m.group.Size()
	rank := m.group.Rank()
	allValues := make([]float64, len(neighbors))
	allDers := make([]float64, d*len(neighbors))
	for i := rank; i < len(neighbors); i += stride {
		m.field.Point(neighbors[i], x)
		allValues[i] = m.eval.Evaluate(x, k, allDers[d*i:d*(i+1)])
	}
	if err := m.group.SumFloat64s(allValues); err != nil {
		return err
	}
	if err := m.group.SumFloat64s(allDers); err != nil {
		return err
	}
	for i, node := range neighbors {
		m.field.AddValueAndDerivatives(node, allValues[i], allDers[d*i:d*(i+1)])
	}
	return nil
}

// supportWindow bounds, in nodes per dimension, the region where a kernel
// can exceed the cutoff. Diagonal kernels use their widths directly. For
// multivariate kernels the sigma matrix is diagonalized and the bounding
// box derives from the dominant eigenpair alone; non-dominant axes of very
// anisotropic kernels may be bounded tightly, but changing this would
// change the numerical results of existing logs.
func (m *Meta) supportWindow(k *kernel.Kernel) ([]int, error) {
	d := m.space.Dim()
	dx := m.field.Spacing()
	window := make([]int, d)

	if !k.Multivariate {
		for i := 0; i < d; i++ {
			cutoff := math.Sqrt(2.0*kernel.DP2Cutoff) * k.Sigma[i]
			window[i] = int(math.Ceil(cutoff / dx[i]))
		}
		return window, nil
	}

	inverse := kernel.SymFromUpper(d, k.Sigma)
	sigma, err := kernel.InvertSym(inverse)
	if err != nil {
		return nil, err
	}
	lmax, vec, err := kernel.DominantEigenpair(sigma)
	if err != nil {
		return nil, err
	}
	for i := 0; i < d; i++ {
		cutoff := math.Sqrt(2.0*kernel.DP2Cutoff) * math.Abs(math.Sqrt(lmax)*vec[i])
		window[i] = int(math.Ceil(cutoff / dx[i]))
	}
	return window, nil
}

// biasAndDerivatives evaluates the accumulated bias at point and, when der
// is non-nil, writes the gradient into it. List mode sums every kernel,
// round-robin across the process group; grid mode is one interpolated
// lookup. With an interval active the grid value is still reported outside
// the window but the derivatives are suppressed, matching the truncation
// the kernels were folded with.
func (m *Meta) biasAndDerivatives(point []float64, der []float64) (float64, error) {
	d := m.space.Dim()
	if der != nil {
		for i := range der {
			der[i] = 0
		}
	}

	if m.field == nil {
		bias := 0.0
		stride := m.group.Size()
		for i := m.group.Rank(); i < len(m.kernels); i += stride {
			bias += m.eval.Evaluate(point, m.kernels[i], der)
		}
		if stride > 1 {
			buf := []float64{bias}
			if err := m.group.SumFloat64s(buf); err != nil {
				return 0, err
			}
			bias = buf[0]
			if der != nil {
				if err := m.group.SumFloat64s(der); err != nil {
					return 0, err
				}
			}
		}
		return bias, nil
	}

	if der == nil {
		return m.field.Value(point)
	}
	vder := make([]float64, d)
	bias, err := m.field.ValueAndDerivatives(point, vder)
	if err != nil {
		return 0, err
	}
	if m.interval == nil || m.interval.Contains(point[0]) {
		copy(der, vder)
	}
	return bias, nil
}

// BiasAt returns the accumulated bias at an arbitrary CV point.
func (m *Meta) BiasAt(point []float64) (float64, error) {
	return m.biasAndDerivatives(point, nil)
}
