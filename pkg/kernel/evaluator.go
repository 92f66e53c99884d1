package kernel

import (
	"math"

	"github.com/mdbias/metadyn/pkg/cv"
)

// Interval restricts the bias to a window on the first (and only)
// collective variable: outside (Lower, Upper) a kernel contributes neither
// value nor gradient. Valid only for monodimensional spaces, and
// incompatible with spline interpolation on grids because the truncation is
// not smooth.
type Interval struct {
	Lower float64
	Upper float64
}

// Contains reports whether the first CV component is inside the window.
func (iv *Interval) Contains(x float64) bool {
	return x > iv.Lower && x < iv.Upper
}

// Evaluator computes a kernel's bias contribution and gradient at a CV
// point. It owns small scratch buffers sized by the CV count, so a single
// Evaluator must not be shared across goroutines.
type Evaluator struct {
	space    cv.Space
	interval *Interval
	dp       []float64
}

// NewEvaluator returns an evaluator over the given CV space. interval may
// be nil.
func NewEvaluator(space cv.Space, interval *Interval) *Evaluator {
	return &Evaluator{
		space:    space,
		interval: interval,
		dp:       make([]float64, space.Dim()),
	}
}

// Evaluate returns the kernel's contribution at point and, when der is
// non-nil, accumulates the gradient into der. Callers summing over many
// kernels zero der once and let contributions accumulate.
//
// Past the cutoff (dp2 >= DP2Cutoff) both value and gradient are exactly
// zero.
func (e *Evaluator) Evaluate(point []float64, k *Kernel, der []float64) float64 {
	if k.Multivariate {
		return e.evaluateMultivariate(point, k, der)
	}
	return e.evaluateDiagonal(point, k, der)
}

func (e *Evaluator) evaluateDiagonal(point []float64, k *Kernel, der []float64) float64 {
	dp2 := 0.0
	for i := range e.space {
		dp := e.space[i].Difference(k.Center[i], point[i]) * k.invSigma[i]
		dp2 += dp * dp
		e.dp[i] = dp
	}
	dp2 *= 0.5
	if dp2 >= DP2Cutoff {
		return 0
	}
	if e.interval != nil && !e.interval.Contains(point[0]) {
		return 0
	}
	bias := k.Height * math.Exp(-dp2)
	if der != nil {
		for i := range e.space {
			der[i] += -bias * e.dp[i] * k.invSigma[i]
		}
	}
	return bias
}

func (e *Evaluator) evaluateMultivariate(point []float64, k *Kernel, der []float64) float64 {
	d := e.space.Dim()
	m := SymFromUpper(d, k.Sigma)

	dp2 := 0.0
	for i := 0; i < d; i++ {
		dpi := e.space[i].Difference(k.Center[i], point[i])
		e.dp[i] = dpi
		for j := i; j < d; j++ {
			if i == j {
				dp2 += dpi * dpi * m.At(i, j) * 0.5
			} else {
				dpj := e.space[j].Difference(k.Center[j], point[j])
				dp2 += dpi * dpj * m.At(i, j)
			}
		}
	}
	if dp2 >= DP2Cutoff {
		return 0
	}
	if e.interval != nil && !e.interval.Contains(point[0]) {
		return 0
	}
	bias := k.Height * math.Exp(-dp2)
	if der != nil {
		for i := 0; i < d; i++ {
			tmp := 0.0
			for j := 0; j < d; j++ {
				tmp += e.dp[j] * m.At(i, j) * bias
			}
			der[i] -= tmp
		}
	}
	return bias
}
