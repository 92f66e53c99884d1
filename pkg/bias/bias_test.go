package bias

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdbias/metadyn/pkg/config"
	"github.com/mdbias/metadyn/pkg/cv"
	"github.com/mdbias/metadyn/pkg/grid"
	"github.com/mdbias/metadyn/pkg/hills"
)

func oneVar() cv.Space { return cv.Space{cv.NewValue("d1")} }

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.New("test")
	cfg.Sigma = []float64{0.2}
	cfg.Height = 0.3
	cfg.Pace = 500
	cfg.HillsFile = filepath.Join(t.TempDir(), "HILLS")
	return cfg
}

func TestFirstEvaluatedStepNeverDeposits(t *testing.T) {
	cfg := baseConfig(t)
	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()

	// step 0 is a pace multiple but is the first evaluated step
	res, err := m.Step(0, 0.0, []float64{1.0})
	require.NoError(t, err)
	assert.False(t, res.Deposited)
	assert.Zero(t, res.Bias)
	assert.Equal(t, 0, m.KernelCount())

	res, err = m.Step(500, 1.0, []float64{1.0})
	require.NoError(t, err)
	assert.True(t, res.Deposited)
	assert.Equal(t, 1, m.KernelCount())
}

func TestDepositFollowsPace(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Pace = 10
	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()

	deposits := 0
	for step := int64(0); step <= 50; step++ {
		res, err := m.Step(step, float64(step)*0.002, []float64{0.5})
		require.NoError(t, err)
		if res.Deposited {
			deposits++
		}
	}
	// pace multiples 10..50, step 0 excluded
	assert.Equal(t, 5, deposits)
	assert.Equal(t, 5, m.KernelCount())
}

func TestBiasAndForcesAfterDeposit(t *testing.T) {
	cfg := baseConfig(t)
	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Step(0, 0.0, []float64{1.0})
	require.NoError(t, err)
	_, err = m.Step(500, 1.0, []float64{1.0})
	require.NoError(t, err)

	// at the deposited center the bias is the full height, force zero
	res, err := m.Step(501, 1.002, []float64{1.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.3, res.Bias, 1e-12)
	assert.InDelta(t, 0.0, res.Forces[0], 1e-12)

	// five sigmas away the kernel is truncated to exactly zero
	v, err := m.BiasAt([]float64{2.0})
	require.NoError(t, err)
	assert.Zero(t, v)

	// uphill of the center the force pushes away from it
	res, err = m.Step(502, 1.004, []float64{1.1})
	require.NoError(t, err)
	assert.Greater(t, res.Forces[0], 0.0)
}

func TestWellTemperedHeightsDecay(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Pace = 10
	cfg.WellTempered.BiasFactor = 10
	cfg.WellTempered.Temperature = 300
	m, err := New(cfg, oneVar())
	require.NoError(t, err)

	for step := int64(0); step <= 100; step++ {
		_, err := m.Step(step, float64(step), []float64{0.0})
		require.NoError(t, err)
	}
	require.NoError(t, m.Close())

	r, err := hills.NewReader(cfg.HillsFile, oneVar())
	require.NoError(t, err)
	defer r.Close()

	var heights []float64
	for {
		rec, err := r.Scan()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, 10.0, rec.BiasFactor)
		heights = append(heights, rec.Height)
	}
	require.Len(t, heights, 10)
	// depositing at a fixed point, every hill is lower than the last
	for i := 1; i < len(heights); i++ {
		assert.Less(t, heights[i], heights[i-1])
	}
	// on-disk heights carry the biasf/(biasf-1) factor
	assert.InDelta(t, 0.3*10.0/9.0, heights[0], 1e-9)
}

func TestListAndGridAgree(t *testing.T) {
	mkConfig := func() *config.Config {
		cfg := baseConfig(t)
		cfg.Pace = 10
		return cfg
	}
	listCfg := mkConfig()
	gridCfg := mkConfig()
	gridCfg.Grid.Min = []float64{-3}
	gridCfg.Grid.Max = []float64{3}
	gridCfg.Grid.Bins = []int{600}

	list, err := New(listCfg, oneVar())
	require.NoError(t, err)
	defer list.Close()
	gridded, err := New(gridCfg, oneVar())
	require.NoError(t, err)
	defer gridded.Close()

	// identical trajectory through both engines
	for step := int64(0); step <= 60; step++ {
		x := []float64{-1.0 + float64(step)*0.03}
		rl, err := list.Step(step, float64(step), x)
		require.NoError(t, err)
		rg, err := gridded.Step(step, float64(step), x)
		require.NoError(t, err)
		assert.Equal(t, rl.Deposited, rg.Deposited)
	}

	for _, x := range []float64{-1.2, -0.5, 0.0, 0.4, 0.8} {
		vl, err := list.BiasAt([]float64{x})
		require.NoError(t, err)
		vg, err := gridded.BiasAt([]float64{x})
		require.NoError(t, err)
		assert.InDelta(t, vl, vg, 1e-3, "x=%g", x)
	}
}

func TestRestartReplaysOwnHistory(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Pace = 10

	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	for step := int64(0); step <= 30; step++ {
		_, err := m.Step(step, float64(step), []float64{0.2})
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.KernelCount())
	before, err := m.BiasAt([]float64{0.2})
	require.NoError(t, err)
	require.NoError(t, m.Close())

	cfg.Restart = true
	m2, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, 3, m2.KernelCount())
	after, err := m2.BiasAt([]float64{0.2})
	require.NoError(t, err)
	assert.InDelta(t, before, after, 1e-9)

	// the restarted engine's first evaluated step never deposits, even on a
	// pace multiple
	res, err := m2.Step(40, 40, []float64{0.2})
	require.NoError(t, err)
	assert.False(t, res.Deposited)
	assert.Equal(t, 3, m2.KernelCount())
}

func TestRestartWithoutLogStartsEmpty(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Restart = true
	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 0, m.KernelCount())
}

func TestWellTemperedRestartMatchesUninterruptedRun(t *testing.T) {
	mkConfig := func(dir string) *config.Config {
		cfg := config.New("wt")
		cfg.Sigma = []float64{0.2}
		cfg.Height = 0.3
		cfg.Pace = 10
		cfg.HillsFile = filepath.Join(dir, "HILLS")
		cfg.WellTempered.BiasFactor = 5
		cfg.WellTempered.Temperature = 300
		return cfg
	}

	// uninterrupted run over 60 steps
	full := mkConfig(t.TempDir())
	ref, err := New(full, oneVar())
	require.NoError(t, err)
	for step := int64(0); step <= 60; step++ {
		_, err := ref.Step(step, float64(step), []float64{0.0})
		require.NoError(t, err)
	}
	want, err := ref.BiasAt([]float64{0.0})
	require.NoError(t, err)
	require.NoError(t, ref.Close())

	// same trajectory split across a restart
	dir := t.TempDir()
	first := mkConfig(dir)
	m, err := New(first, oneVar())
	require.NoError(t, err)
	for step := int64(0); step <= 30; step++ {
		_, err := m.Step(step, float64(step), []float64{0.0})
		require.NoError(t, err)
	}
	require.NoError(t, m.Close())

	second := mkConfig(dir)
	second.Restart = true
	m2, err := New(second, oneVar())
	require.NoError(t, err)
	// step 31 is re-evaluated as the restarted engine's first step
	for step := int64(31); step <= 60; step++ {
		_, err := m2.Step(step, float64(step), []float64{0.0})
		require.NoError(t, err)
	}
	got, err := m2.BiasAt([]float64{0.0})
	require.NoError(t, err)
	require.NoError(t, m2.Close())

	// the log stores nine decimals, so replay agrees to that precision
	assert.InDelta(t, want, got, 1e-6)
}

func TestIntervalSuppressesBiasOutside(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Interval.Enabled = true
	cfg.Interval.Lower = -1.0
	cfg.Interval.Upper = 1.0
	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Step(0, 0, []float64{0.9})
	require.NoError(t, err)
	_, err = m.Step(500, 1, []float64{0.9})
	require.NoError(t, err)

	inside, err := m.BiasAt([]float64{0.9})
	require.NoError(t, err)
	assert.Greater(t, inside, 0.0)

	outside, err := m.BiasAt([]float64{1.05})
	require.NoError(t, err)
	assert.Zero(t, outside)
}

func TestGridSnapshot(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Pace = 10
	cfg.Grid.Min = []float64{-3}
	cfg.Grid.Max = []float64{3}
	cfg.Grid.Bins = []int{100}
	cfg.Grid.SnapshotFile = filepath.Join(t.TempDir(), "GRID")
	cfg.Grid.SnapshotStride = 20

	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()

	for step := int64(0); step <= 20; step++ {
		_, err := m.Step(step, float64(step), []float64{0.0})
		require.NoError(t, err)
	}

	f, err := os.Open(cfg.Grid.SnapshotFile)
	require.NoError(t, err)
	defer f.Close()
	g, err := grid.Read(f, oneVar(), true)
	require.NoError(t, err)

	v, err := g.Value([]float64{0.0})
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
}

func TestGridSnapshotRetention(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Pace = 10
	cfg.Grid.Min = []float64{-3}
	cfg.Grid.Max = []float64{3}
	cfg.Grid.Bins = []int{50}
	dir := t.TempDir()
	cfg.Grid.SnapshotFile = filepath.Join(dir, "GRID")
	cfg.Grid.SnapshotStride = 10
	cfg.Grid.KeepSnapshots = true

	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()

	for step := int64(0); step <= 20; step++ {
		_, err := m.Step(step, float64(step), []float64{0.0})
		require.NoError(t, err)
	}

	for _, tag := range []string{"GRID.0", "GRID.10", "GRID.20"} {
		_, err := os.Stat(filepath.Join(dir, tag))
		assert.NoError(t, err, tag)
	}
}

func TestDimensionMismatchIsFatal(t *testing.T) {
	cfg := baseConfig(t)
	m, err := New(cfg, oneVar())
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Step(0, 0, []float64{1.0, 2.0})
	assert.Error(t, err)
}
