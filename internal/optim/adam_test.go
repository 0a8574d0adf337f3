package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/spectra/internal/nn"
)

func TestAdam_Defaults(t *testing.T) {
	a := NewAdam(nil, AdamConfig{})
	assert.Equal(t, 0.001, a.LR())
	assert.Equal(t, 0.9, a.beta1)
	assert.Equal(t, 0.999, a.beta2)
	assert.Equal(t, 1e-7, a.eps)
}

func TestAdam_FirstStepMovesByLR(t *testing.T) {
	p := nn.NewParameter("w", []int{2}, []float64{1, 1})
	p.Grad()[0] = 3
	p.Grad()[1] = -0.5

	a := NewAdam([]*nn.Parameter{p}, AdamConfig{LR: 0.1})
	a.Step()

	// With bias correction the first update is lr·sign(g).
	assert.InDelta(t, 0.9, p.Value()[0], 1e-6)
	assert.InDelta(t, 1.1, p.Value()[1], 1e-6)
	assert.Equal(t, 1, a.Steps())
}

func TestAdam_Decay(t *testing.T) {
	a := NewAdam(nil, AdamConfig{LR: 1, Decay: 0.5})
	assert.Equal(t, 1.0, a.LR())
	a.Step()
	assert.InDelta(t, 1/1.5, a.LR(), 1e-12)
	a.Step()
	assert.InDelta(t, 0.5, a.LR(), 1e-12)
}

func TestAdam_MinimizesQuadratic(t *testing.T) {
	p := nn.NewParameter("x", []int{1}, []float64{5})
	a := NewAdam([]*nn.Parameter{p}, AdamConfig{LR: 0.05})

	for i := 0; i < 1000; i++ {
		a.ZeroGrad()
		p.Grad()[0] = 2 * (p.Value()[0] - 2)
		a.Step()
	}
	assert.Less(t, math.Abs(p.Value()[0]-2), 0.1)
}

func TestAdam_ZeroGrad(t *testing.T) {
	p := nn.NewParameter("w", []int{1}, []float64{0})
	p.Grad()[0] = 4
	NewAdam([]*nn.Parameter{p}, AdamConfig{}).ZeroGrad()
	assert.Equal(t, 0.0, p.Grad()[0])
}
