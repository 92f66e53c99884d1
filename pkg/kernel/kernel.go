// Package kernel implements the Gaussian kernels deposited by the
// metadynamics engine and their numerically guarded evaluation.
//
// A kernel is either diagonal (one width per collective variable) or
// multivariate, in which case Sigma carries the upper-triangular half of a
// symmetric precision-like matrix produced by an adaptive width estimator.
// Kernels are immutable once constructed.
package kernel

import "math"

// DP2Cutoff is the normalized squared-distance threshold beyond which a
// kernel contributes exactly zero. Contributions below e^-6.25 are treated
// as numerically negligible; the hard zero is what bounds the support
// window when kernels are folded into a grid.
const DP2Cutoff = 6.25

// invSigmaEpsilon guards the elementwise reciprocal of the widths. A width
// component this close to zero keeps a zero inverse instead of blowing up;
// that axis then contributes nothing, which is the intended degenerate
// behavior for flexible hills.
const invSigmaEpsilon = 1e-20

// Kernel is one deposited Gaussian hill.
type Kernel struct {
	// Center is the CV point at deposition time, one value per variable.
	Center []float64
	// Sigma holds d widths for diagonal kernels or the d(d+1)/2
	// upper-triangular entries of the inverse matrix for multivariate ones.
	Sigma []float64
	// Height is the peak amplitude, already well-tempered-rescaled when
	// applicable.
	Height float64
	// Multivariate selects the interpretation of Sigma.
	Multivariate bool

	invSigma []float64
}

// New constructs an immutable kernel. The inverse widths are cached up
// front so the evaluator never divides in its inner loop.
func New(center, sigma []float64, height float64, multivariate bool) *Kernel {
	k := &Kernel{
		Center:       append([]float64(nil), center...),
		Sigma:        append([]float64(nil), sigma...),
		Height:       height,
		Multivariate: multivariate,
	}
	k.invSigma = make([]float64, len(k.Sigma))
	for i, s := range k.Sigma {
		if math.Abs(s) > invSigmaEpsilon {
			k.invSigma[i] = 1.0 / s
		}
	}
	return k
}

// Dim returns the dimensionality of the kernel's center.
func (k *Kernel) Dim() int { return len(k.Center) }

// SigmaLen returns the expected width-vector length for dimension d.
func SigmaLen(d int, multivariate bool) int {
	if multivariate {
		return d * (d + 1) / 2
	}
	return d
}
