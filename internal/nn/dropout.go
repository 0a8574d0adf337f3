package nn

import (
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"
)

// Dropout zeroes a random fraction of activations during training and
// scales the survivors by 1/(1-rate). At inference it is the identity.
//
// A rate of 0 never drops anything.
type Dropout struct {
	name string
	rate float64
	rng  *rand.Rand

	scale []float64
}

// NewDropout creates a dropout layer. rate must be in [0, 1).
func NewDropout(name string, rate float64, rng *rand.Rand) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("nn.NewDropout: rate %v outside [0, 1)", rate))
	}
	return &Dropout{name: name, rate: rate, rng: rng}
}

// Rate returns the drop probability.
func (l *Dropout) Rate() float64 { return l.rate }

// Forward samples a new mask when train is set.
func (l *Dropout) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	in := values(x)
	out := make([]float64, len(in))
	if !train || l.rate == 0 {
		copy(out, in)
		if train {
			l.scale = ones(len(in))
		}
		return newDense(out, x.Shape().Clone()...), nil
	}

	keep := 1 / (1 - l.rate)
	scale := make([]float64, len(in))
	for i, v := range in {
		//nolint:gosec // dropout masks are not security-critical
		if l.rng.Float64() >= l.rate {
			scale[i] = keep
			out[i] = v * keep
		}
	}
	l.scale = scale
	return newDense(out, x.Shape().Clone()...), nil
}

// Backward applies the mask of the last training Forward.
func (l *Dropout) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.scale == nil {
		return nil, errNoForward(l.name)
	}
	g := values(grad)
	if len(g) != len(l.scale) {
		return nil, fmt.Errorf("%s: gradient has %d values, expected %d", l.name, len(g), len(l.scale))
	}
	dx := make([]float64, len(g))
	for i := range g {
		dx[i] = g[i] * l.scale[i]
	}
	return newDense(dx, grad.Shape().Clone()...), nil
}

// Parameters returns nil.
func (l *Dropout) Parameters() []*Parameter { return nil }

func (l *Dropout) String() string { return fmt.Sprintf("Dropout(%s, rate=%g)", l.name, l.rate) }

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
