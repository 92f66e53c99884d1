package sim

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mdbias/metadyn/pkg/bias"
	"github.com/mdbias/metadyn/pkg/config"
	"github.com/mdbias/metadyn/pkg/cv"
)

func TestPotentialForce(t *testing.T) {
	// minima at x = ±1 and the barrier top at 0 are all force-free
	assert.Zero(t, potentialForce(4, -1))
	assert.Zero(t, potentialForce(4, 0))
	assert.Zero(t, potentialForce(4, 1))
	// inside the left well the force points back toward -1
	assert.Less(t, potentialForce(4, -0.5), 0.0)
	assert.Greater(t, potentialForce(4, -1.5), 0.0)
}

func TestRunDepositsAndStaysFinite(t *testing.T) {
	cfg := Defaults()
	cfg.Steps = 2000
	cfg.ReportStride = 0

	bcfg := config.New("sim-test")
	bcfg.Sigma = []float64{0.1}
	bcfg.Height = 0.5
	bcfg.Pace = 100
	bcfg.HillsFile = filepath.Join(t.TempDir(), "HILLS")

	engine, err := bias.New(bcfg, cv.Space{cv.NewValue("d1")})
	require.NoError(t, err)
	defer engine.Close()

	stats, err := Run(cfg, engine, zap.NewNop())
	require.NoError(t, err)

	// pace multiples 100..2000, the first evaluated step excluded
	assert.Equal(t, 20, stats.Deposited)
	assert.Equal(t, 20, engine.KernelCount())
	assert.False(t, math.IsNaN(stats.Final))
	assert.Less(t, math.Abs(stats.Final), 5.0)
}

func TestRunIsDeterministicForASeed(t *testing.T) {
	runOnce := func() float64 {
		cfg := Defaults()
		cfg.Steps = 500
		cfg.Seed = 7
		cfg.ReportStride = 0

		bcfg := config.New("sim-seed")
		bcfg.Sigma = []float64{0.1}
		bcfg.Height = 0.5
		bcfg.Pace = 100
		bcfg.HillsFile = filepath.Join(t.TempDir(), "HILLS")

		engine, err := bias.New(bcfg, cv.Space{cv.NewValue("d1")})
		require.NoError(t, err)
		defer engine.Close()

		stats, err := Run(cfg, engine, zap.NewNop())
		require.NoError(t, err)
		return stats.Final
	}

	assert.Equal(t, runOnce(), runOnce())
}
