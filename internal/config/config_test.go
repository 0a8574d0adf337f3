package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spectra/internal/arch"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.False(t, cfg.Regressor)
	assert.Equal(t, arch.Classification, cfg.Task())
	assert.Equal(t, []int{1}, cfg.Architecture.Filters)
	assert.Equal(t, []int{10}, cfg.Architecture.KernelSizes)
	assert.Equal(t, []int{20}, cfg.Architecture.PoolSizes)
	assert.Equal(t, []int{40, 70}, cfg.Architecture.Hidden)
	assert.Equal(t, 0.001, cfg.Architecture.LearningRate)
	assert.Equal(t, 100, cfg.Epochs)
	assert.Equal(t, 0.01, cfg.CVSplit)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.True(t, cfg.Quantize)
	assert.False(t, cfg.UseQuantized)
	assert.Equal(t, LayoutTable, cfg.InputLayout)
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
regressor: true
epochs: 5
architecture:
  filters: [4, 8]
  kernel_sizes: [5, 3]
  pool_sizes: [2, 2]
  conv_dropout: [0.1, 0]
`))
	require.NoError(t, err)
	assert.Equal(t, arch.Regression, cfg.Task())
	assert.Equal(t, 5, cfg.Epochs)
	assert.Equal(t, []int{4, 8}, cfg.Architecture.Filters)
	assert.Equal(t, []int{40, 70}, cfg.Architecture.Hidden, "untouched keys keep defaults")
	assert.Equal(t, 64, cfg.BatchSize)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "epoch: 3"},
		{"zero epochs", "epochs: 0"},
		{"split of one", "cv_split: 1"},
		{"layout", "input_layout: csv"},
		{"log level", "log_level: loud"},
		{"pattern", "batch_pattern: '['"},
		{"threshold", "report_threshold: 2"},
		{"unequal architecture", "architecture:\n  filters: [1, 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := Parse(strings.NewReader("architecture:\n  filters: [1, 2]"))
	var cfgErr *arch.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 42\nmodel_dir: out\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, "out", cfg.ModelDir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
