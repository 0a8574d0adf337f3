package store

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/labels"
	"github.com/born-ml/spectra/internal/quant"
	"github.com/born-ml/spectra/internal/serialization"
)

func smallConfig() arch.Config {
	cfg := arch.DefaultConfig()
	cfg.KernelSizes = []int{3}
	cfg.PoolSizes = []int{2}
	cfg.Hidden = []int{5}
	return cfg
}

func spectra(n, width int) *tensor.Dense {
	rng := rand.New(rand.NewSource(4))
	data := make([]float64, n*width)
	for i := range data {
		data[i] = rng.Float64()
	}
	return tensor.New(tensor.WithShape(n, 1, width, 1), tensor.WithBacking(data))
}

func TestPaths(t *testing.T) {
	s := New("models", arch.Classification)
	assert.Equal(t, filepath.Join("models", "model_classifier_CNN.born"), s.ModelPath())
	assert.Equal(t, filepath.Join("models", "model_classifier_CNN_edge.qnt"), s.QuantizedPath())
	assert.Equal(t, filepath.Join("models", "model_le.json"), s.ReductorPath())
	assert.Equal(t, filepath.Join("models", "model_spectral_range.json"), s.AxisPath())

	assert.Equal(t, filepath.Join("models", "model_regressor_CNN.born"), New("models", arch.Regression).ModelPath())
}

func TestNetwork_RoundTrip(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested"), arch.Classification)
	net, err := arch.Assemble(smallConfig(), 20, arch.Head{Task: arch.Classification, Width: 3}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.False(t, s.Exists())
	require.NoError(t, s.SaveNetwork(net, &serialization.TrainingMeta{Epochs: 2, Optimizer: "adam"}))
	assert.True(t, s.Exists())

	loaded, err := s.LoadNetwork()
	require.NoError(t, err)
	assert.Equal(t, net.Head, loaded.Head)
	assert.Equal(t, net.InputWidth, loaded.InputWidth)
	assert.Equal(t, net.Specs, loaded.Specs)

	x := spectra(3, 20)
	want, err := net.Predict(x)
	require.NoError(t, err)
	got, err := loaded.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())
}

func TestNetwork_TaskMismatch(t *testing.T) {
	dir := t.TempDir()
	net, err := arch.Assemble(smallConfig(), 20, arch.Head{Task: arch.Regression, Width: 1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Error(t, New(dir, arch.Classification).SaveNetwork(net, nil))
	require.NoError(t, New(dir, arch.Regression).SaveNetwork(net, nil))

	// A regressor file must not load as a classifier.
	cls := New(dir, arch.Classification)
	require.NoError(t, os.Rename(New(dir, arch.Regression).ModelPath(), cls.ModelPath()))
	_, err = cls.LoadNetwork()
	assert.Error(t, err)
}

func TestReductorAndAxis(t *testing.T) {
	s := New(t.TempDir(), arch.Classification)
	r := labels.NewReductor()
	require.NoError(t, r.Fit([][]float64{{2}, {1}}))

	require.NoError(t, s.SaveReductor(r))
	require.NoError(t, s.SaveAxis([]float64{400, 401.5, 403}))

	back, err := s.LoadReductor()
	require.NoError(t, err)
	assert.Equal(t, r.OneHotWidth(), back.OneHotWidth())

	axis, err := s.LoadAxis()
	require.NoError(t, err)
	assert.Equal(t, []float64{400, 401.5, 403}, axis)
}

func TestQuantized_RoundTrip(t *testing.T) {
	s := New(t.TempDir(), arch.Regression)
	net, err := arch.Assemble(smallConfig(), 20, arch.Head{Task: arch.Regression, Width: 1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	a, err := quant.Compress(net, spectra(8, 20))
	require.NoError(t, err)

	require.NoError(t, s.SaveQuantized(a))
	back, err := s.LoadQuantized()
	require.NoError(t, err)
	assert.Equal(t, a.Activations, back.Activations)
}

func TestLoad_Bundle(t *testing.T) {
	s := New(t.TempDir(), arch.Classification)
	net, err := arch.Assemble(smallConfig(), 20, arch.Head{Task: arch.Classification, Width: 3}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	r := labels.NewReductor()
	require.NoError(t, r.Fit([][]float64{{1}, {2}}))

	_, err = s.Load(false)
	assert.Error(t, err, "nothing saved yet")

	require.NoError(t, s.SaveNetwork(net, nil))
	require.NoError(t, s.SaveAxis(make([]float64, 20)))
	_, err = s.Load(false)
	assert.Error(t, err, "classifier without a reductor")

	require.NoError(t, s.SaveReductor(r))
	b, err := s.Load(false)
	require.NoError(t, err)
	assert.NotNil(t, b.Network)
	assert.Nil(t, b.Quantized)
	assert.NotNil(t, b.Reductor)
	assert.Len(t, b.Axis, 20)

	_, err = s.Load(true)
	assert.Error(t, err, "no quantized artifact")
}
