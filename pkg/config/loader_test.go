package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.WellTempered.BiasFactor = 10
	cfg.WellTempered.Temperature = 300
	cfg.Grid.Min = []float64{0}
	cfg.Grid.Max = []float64{3}
	cfg.Grid.Bins = []int{100}

	path := filepath.Join(t.TempDir(), "metadyn.yaml")
	require.NoError(t, Save(path, cfg))

	var loaded Config
	require.NoError(t, Load(path, &loaded))
	assert.Equal(t, cfg.Name, loaded.Name)
	assert.Equal(t, cfg.Sigma, loaded.Sigma)
	assert.Equal(t, cfg.Height, loaded.Height)
	assert.Equal(t, cfg.WellTempered, loaded.WellTempered)
	assert.Equal(t, cfg.Grid.Bins, loaded.Grid.Bins)
}

func TestLoadMissingFile(t *testing.T) {
	var cfg Config
	err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	assert.Error(t, err)
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("METADYN_TEST_HILLS", "HILLS.custom")

	path := filepath.Join(t.TempDir(), "metadyn.yaml")
	content := "name: env-test\nhills_file: ${METADYN_TEST_HILLS}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var cfg Config
	require.NoError(t, Load(path, &cfg))
	assert.Equal(t, "HILLS.custom", cfg.HillsFile)
}
