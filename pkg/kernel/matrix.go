package kernel

import (
	"gonum.org/v1/gonum/mat"

	"github.com/mdbias/metadyn/pkg/errors"
)

// The multivariate width of a kernel lives in three shapes:
//
//   - working form: upper-triangular flattening of the inverse (precision)
//     matrix, row by row, the form kernels carry in Kernel.Sigma;
//   - full form: the symmetric d×d matrix itself;
//   - band form: the lower-triangular Cholesky factor of the sigma matrix,
//     stored diagonal by diagonal, the compact "sigma-like" form written to
//     the hill log.
//
// The helpers below convert between them on small dense matrices sized by
// the CV count.

// SymFromUpper rebuilds the full symmetric matrix from its upper-triangular
// flattening.
func SymFromUpper(d int, upper []float64) *mat.SymDense {
	m := mat.NewSymDense(d, nil)
	k := 0
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			m.SetSym(i, j, upper[k])
			k++
		}
	}
	return m
}

// UpperFromSym flattens the upper triangle of a symmetric matrix row by row.
func UpperFromSym(m mat.Symmetric) []float64 {
	d := m.SymmetricDim()
	upper := make([]float64, d*(d+1)/2)
	k := 0
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			upper[k] = m.At(i, j)
			k++
		}
	}
	return upper
}

// InvertSym inverts a symmetric matrix, re-enforcing symmetry on the result
// so downstream triangular flattenings are exact.
func InvertSym(m *mat.SymDense) (*mat.SymDense, error) {
	d := m.SymmetricDim()
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNumerical, "singular width matrix")
	}
	out := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			out.SetSym(i, j, inv.At(i, j))
		}
	}
	return out, nil
}

// CholeskyBand factorizes a symmetric positive-definite matrix and returns
// the lower Cholesky factor in band order: diagonal by diagonal, main
// diagonal first. This is the encoding hill logs use for multivariate
// widths; it is positive definite by construction when decoded.
func CholeskyBand(m *mat.SymDense) ([]float64, error) {
	d := m.SymmetricDim()
	var chol mat.Cholesky
	if !chol.Factorize(m) {
		return nil, errors.New(errors.ErrorTypeNumerical, "width matrix is not positive definite")
	}
	var lower mat.TriDense
	chol.LTo(&lower)

	band := make([]float64, 0, d*(d+1)/2)
	for i := 0; i < d; i++ {
		for j := 0; j < d-i; j++ {
			band = append(band, lower.At(j+i, j))
		}
	}
	return band, nil
}

// BandToSym reconstructs the full symmetric matrix L·Lᵗ from its band-form
// lower Cholesky factor.
func BandToSym(d int, band []float64) *mat.SymDense {
	lower := mat.NewDense(d, d, nil)
	k := 0
	for i := 0; i < d; i++ {
		for j := 0; j < d-i; j++ {
			lower.Set(j+i, j, band[k])
			k++
		}
	}
	var full mat.Dense
	full.Mul(lower, lower.T())

	out := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			out.SetSym(i, j, full.At(i, j))
		}
	}
	return out
}

// DominantEigenpair returns the largest eigenvalue of a symmetric matrix
// together with its eigenvector. The grid fold uses the dominant pair of
// the sigma matrix to bound a multivariate kernel's elliptical support.
func DominantEigenpair(m *mat.SymDense) (float64, []float64, error) {
	d := m.SymmetricDim()
	var eig mat.EigenSym
	if !eig.Factorize(m, true) {
		return 0, nil, errors.New(errors.ErrorTypeNumerical, "eigendecomposition of width matrix failed")
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	maxVal := 0.0
	maxIdx := -1
	for i, v := range vals {
		if v > maxVal {
			maxVal = v
			maxIdx = i
		}
	}
	if maxIdx < 0 {
		return 0, nil, errors.New(errors.ErrorTypeNumerical, "width matrix has no positive eigenvalue")
	}
	vec := make([]float64, d)
	for i := 0; i < d; i++ {
		vec[i] = vecs.At(i, maxIdx)
	}
	return maxVal, vec, nil
}
