package arch

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func spectra(rng *rand.Rand, n, width int) *tensor.Dense {
	data := make([]float64, n*width)
	for i := range data {
		data[i] = rng.Float64()
	}
	return tensor.New(tensor.WithShape(n, 1, width, 1), tensor.WithBacking(data))
}

func TestPlan_Default(t *testing.T) {
	specs, err := Plan(DefaultConfig(), 100, Head{Task: Classification, Width: 3})
	require.NoError(t, err)

	var kinds []Kind
	for _, s := range specs {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []Kind{
		KindConv, KindReLU, KindDropout, KindMaxPool, KindFlatten,
		KindDense, KindReLU, KindDropout,
		KindDense, KindReLU, KindDropout,
		KindDense, KindSoftmax,
	}, kinds)

	assert.Equal(t, []int{1, 91, 1}, specs[0].OutputShape)
	assert.Equal(t, []int{1, 4, 1}, specs[3].OutputShape)
	assert.Equal(t, []int{4}, specs[4].OutputShape)
	assert.Equal(t, 4*40+40, specs[5].Params)
	assert.Equal(t, []int{3}, specs[len(specs)-1].OutputShape)
}

func TestPlan_RegressionHasLinearOutput(t *testing.T) {
	specs, err := Plan(DefaultConfig(), 100, Head{Task: Regression, Width: 1})
	require.NoError(t, err)
	last := specs[len(specs)-1]
	assert.Equal(t, KindDense, last.Kind)
	assert.Equal(t, 1, last.Units)
}

func TestPlan_LayerShapeErrors(t *testing.T) {
	two := func() Config {
		cfg := DefaultConfig()
		cfg.Filters = []int{2, 2}
		cfg.KernelSizes = []int{3, 3}
		cfg.PoolSizes = []int{2, 2}
		cfg.ConvDropout = []float64{0, 0}
		return cfg
	}

	tests := []struct {
		name  string
		cfg   func() Config
		width int
		want  LayerShapeError
	}{
		{"kernel wider than spectrum", DefaultConfig, 5, LayerShapeError{Layer: 0, Kind: "conv", Required: 10, Available: 5}},
		{"pool wider than conv output", DefaultConfig, 25, LayerShapeError{Layer: 0, Kind: "pool", Required: 20, Available: 16}},
		// 8 -> conv 6 -> pool 3 -> conv 1 -> pool 2 does not fit
		{"second block pool", two, 8, LayerShapeError{Layer: 1, Kind: "pool", Required: 2, Available: 1}},
		// 5 -> conv 3 -> pool 1 -> conv 3 does not fit
		{"second block conv", two, 5, LayerShapeError{Layer: 1, Kind: "conv", Required: 3, Available: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(tt.cfg(), tt.width, Head{Task: Regression, Width: 1})
			var shapeErr *LayerShapeError
			require.True(t, errors.As(err, &shapeErr), "got %v", err)
			assert.Equal(t, tt.want, *shapeErr)

			net, err := Assemble(tt.cfg(), tt.width, Head{Task: Regression, Width: 1}, rand.New(rand.NewSource(1)))
			assert.Nil(t, net)
			assert.True(t, errors.As(err, &shapeErr))
		})
	}
}

func TestPlan_ExactFit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KernelSizes = []int{4}
	cfg.PoolSizes = []int{1}
	specs, err := Plan(cfg, 4, Head{Task: Regression, Width: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, specs[3].OutputShape)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no blocks", func(c *Config) { c.Filters = nil }, "filters"},
		{"unequal kernels", func(c *Config) { c.KernelSizes = []int{3, 3} }, "kernel_sizes"},
		{"unequal pools", func(c *Config) { c.PoolSizes = nil }, "pool_sizes"},
		{"zero filters", func(c *Config) { c.Filters = []int{0} }, "filters"},
		{"dropout of one", func(c *Config) { c.ConvDropout = []float64{1} }, "conv_dropout"},
		{"negative hidden", func(c *Config) { c.Hidden = []int{-1} }, "hidden"},
		{"dense dropout", func(c *Config) { c.DenseDropout = -0.1 }, "dense_dropout"},
		{"learning rate", func(c *Config) { c.LearningRate = 0 }, "learning_rate"},
		{"negative l2", func(c *Config) { c.L2 = -1 }, "l2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestHead_Validate(t *testing.T) {
	assert.NoError(t, Head{Task: Regression, Width: 1}.Validate())
	assert.Error(t, Head{Task: Regression, Width: 2}.Validate())
	assert.NoError(t, Head{Task: Classification, Width: 2}.Validate())
	assert.Error(t, Head{Task: Classification, Width: 1}.Validate())
}

func TestAssemble_BuildMatchesPlan(t *testing.T) {
	net, err := Assemble(DefaultConfig(), 100, Head{Task: Classification, Width: 4}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	total := 0
	for _, s := range net.Specs {
		total += s.Params
	}
	assert.Equal(t, total, net.Net.CountParameters())
	assert.Equal(t, len(net.Specs), net.Net.Len())
	assert.Equal(t, 4, net.OutputWidth())
	assert.Contains(t, net.Summary(), "Total params")

	out, err := net.Predict(spectra(rand.New(rand.NewSource(2)), 3, 100))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, []int(out.Shape()))
	probs := out.Data().([]float64)
	for r := 0; r < 3; r++ {
		sum := 0.0
		for _, p := range probs[r*4 : (r+1)*4] {
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-9)
	}

	_, err = net.Predict(spectra(rand.New(rand.NewSource(2)), 1, 99))
	assert.Error(t, err)
}

func TestAssemble_SameSeedSameWeights(t *testing.T) {
	a, err := Assemble(DefaultConfig(), 60, Head{Task: Regression, Width: 1}, rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	b, err := Assemble(DefaultConfig(), 60, Head{Task: Regression, Width: 1}, rand.New(rand.NewSource(9)))
	require.NoError(t, err)

	sa, sb := a.Net.StateDict(), b.Net.StateDict()
	for name, ta := range sa {
		assert.Equal(t, ta.Data(), sb[name].Data(), name)
	}
}

func TestNetwork_TrainBatchReducesLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Filters = []int{2}
	cfg.KernelSizes = []int{3}
	cfg.PoolSizes = []int{2}
	cfg.Hidden = []int{8}
	cfg.LearningRate = 0.01
	cfg.L2 = 0

	rng := rand.New(rand.NewSource(1))
	net, err := Assemble(cfg, 12, Head{Task: Regression, Width: 1}, rng)
	require.NoError(t, err)

	x := spectra(rng, 8, 12)
	xs := x.Data().([]float64)
	ys := make([]float64, 8)
	for i := range ys {
		for _, v := range xs[i*12 : (i+1)*12] {
			ys[i] += v
		}
	}
	y := tensor.New(tensor.WithShape(8, 1), tensor.WithBacking(ys))

	first, _, err := net.Evaluate(x, y)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, _, err := net.TrainBatch(x, y)
		require.NoError(t, err)
	}
	last, _, err := net.Evaluate(x, y)
	require.NoError(t, err)
	assert.Less(t, last, first)
	assert.Equal(t, 200, net.Optimizer.Steps())
}

func TestKindAndTaskText(t *testing.T) {
	data, err := json.Marshal(LayerSpec{Kind: KindMaxPool, Name: "pool_0", Pool: 2})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"maxpool2d"`)

	var back LayerSpec
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, KindMaxPool, back.Kind)

	var task Task
	require.NoError(t, task.UnmarshalText([]byte("classifier")))
	assert.Equal(t, Classification, task)
	assert.Error(t, task.UnmarshalText([]byte("ranker")))
}
