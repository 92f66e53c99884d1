package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestUpperRoundTrip(t *testing.T) {
	upper := []float64{4.0, 1.0, 0.5, 3.0, 0.2, 2.0}
	m := SymFromUpper(3, upper)
	assert.Equal(t, upper, UpperFromSym(m))
	assert.Equal(t, 1.0, m.At(1, 0))
	assert.Equal(t, 0.5, m.At(2, 0))
}

func TestInvertSym(t *testing.T) {
	m := SymFromUpper(2, []float64{4.0, 1.0, 3.0})
	inv, err := InvertSym(m)
	require.NoError(t, err)

	var prod mat.Dense
	prod.Mul(m, inv)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, prod.At(i, j), 1e-12)
		}
	}
}

func TestInvertSymSingular(t *testing.T) {
	m := SymFromUpper(2, []float64{1.0, 1.0, 1.0})
	_, err := InvertSym(m)
	assert.Error(t, err)
}

func TestCholeskyBandRoundTrip(t *testing.T) {
	m := SymFromUpper(3, []float64{4.0, 1.0, 0.5, 3.0, 0.2, 2.0})
	band, err := CholeskyBand(m)
	require.NoError(t, err)
	require.Len(t, band, 6)

	back := BandToSym(3, band)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, m.At(i, j), back.At(i, j), 1e-12)
		}
	}
}

func TestCholeskyBandOrder(t *testing.T) {
	// for a diagonal matrix the factor is diagonal, so the band is the
	// square roots followed by zeros
	m := SymFromUpper(2, []float64{4.0, 0.0, 9.0})
	band, err := CholeskyBand(m)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, band[0], 1e-12)
	assert.InDelta(t, 3.0, band[1], 1e-12)
	assert.InDelta(t, 0.0, band[2], 1e-12)
}

func TestCholeskyBandNotPositiveDefinite(t *testing.T) {
	m := SymFromUpper(2, []float64{1.0, 2.0, 1.0})
	_, err := CholeskyBand(m)
	assert.Error(t, err)
}

func TestDominantEigenpair(t *testing.T) {
	// eigenvalues 1 and 3, dominant eigenvector along (1,1)/sqrt(2)
	m := SymFromUpper(2, []float64{2.0, 1.0, 2.0})
	val, vec, err := DominantEigenpair(m)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, val, 1e-12)
	assert.InDelta(t, 1.0, vec[0]/vec[1], 1e-12)
}
