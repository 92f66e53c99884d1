package grid

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/errors"
)

func TestSnapshotRoundTrip(t *testing.T) {
	space := cv.Space{cv.NewValue("x"), cv.NewPeriodicValue("phi", -math.Pi, math.Pi)}
	g, err := NewDense(space, []float64{0, -math.Pi}, []float64{1, math.Pi}, []int{4, 6}, true)
	require.NoError(t, err)

	for i := 0; i < g.Len(); i++ {
		g.AddValueAndDerivatives(i, float64(i)*0.25, []float64{float64(i), -float64(i) * 0.5})
	}

	var buf bytes.Buffer
	require.NoError(t, g.WriteTo(&buf))

	text := buf.String()
	assert.True(t, strings.HasPrefix(text, "#! FIELDS x phi bias der_x der_phi\n"))
	assert.Contains(t, text, "#! SET nbins_phi 6")
	assert.Contains(t, text, "#! SET periodic_phi true")

	back, err := Read(strings.NewReader(text), space, true)
	require.NoError(t, err)
	require.Equal(t, g.Len(), back.Len())

	der := make([]float64, 2)
	for i := 0; i < g.Len(); i++ {
		assert.InDelta(t, g.ValueAt(i), back.ValueAt(i), 1e-8)
		back.DerivativesAt(i, der)
		assert.InDelta(t, float64(i), der[0], 1e-8)
		assert.InDelta(t, -float64(i)*0.5, der[1], 1e-8)
	}
}

func TestReadRejectsPeriodicityMismatch(t *testing.T) {
	space := cv.Space{cv.NewPeriodicValue("x", 0, 1)}
	g, err := NewDense(space, []float64{0}, []float64{1}, []int{4}, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteTo(&buf))

	_, err = Read(bytes.NewReader(buf.Bytes()), cv.Space{cv.NewValue("x")}, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRestart))
}

func TestReadRejectsUnknownVariable(t *testing.T) {
	space := cv.Space{cv.NewValue("x")}
	g, err := NewDense(space, []float64{0}, []float64{1}, []int{4}, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteTo(&buf))

	_, err = Read(bytes.NewReader(buf.Bytes()), cv.Space{cv.NewValue("y")}, false)
	assert.Error(t, err)
}

func TestReadRejectsTruncatedFile(t *testing.T) {
	space := cv.Space{cv.NewValue("x")}
	g, err := NewDense(space, []float64{0}, []float64{1}, []int{4}, false)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, g.WriteTo(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	truncated := strings.Join(lines[:len(lines)-1], "\n")
	_, err = Read(strings.NewReader(truncated), space, false)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeParse))
}
