package nn

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// ReLU applies f(x) = max(0, x) element-wise to a tensor of any shape.
type ReLU struct {
	name string
	mask []bool
}

// NewReLU creates a ReLU activation.
func NewReLU(name string) *ReLU {
	return &ReLU{name: name}
}

// Forward zeroes negative activations.
func (l *ReLU) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	in := values(x)
	out := make([]float64, len(in))
	var mask []bool
	if train {
		mask = make([]bool, len(in))
	}
	for i, v := range in {
		if v > 0 {
			out[i] = v
			if train {
				mask[i] = true
			}
		}
	}
	if train {
		l.mask = mask
	}
	return newDense(out, x.Shape().Clone()...), nil
}

// Backward passes the gradient where the input was positive.
func (l *ReLU) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.mask == nil {
		return nil, errNoForward(l.name)
	}
	g := values(grad)
	if len(g) != len(l.mask) {
		return nil, fmt.Errorf("%s: gradient has %d values, expected %d", l.name, len(g), len(l.mask))
	}
	dx := make([]float64, len(g))
	for i, on := range l.mask {
		if on {
			dx[i] = g[i]
		}
	}
	return newDense(dx, grad.Shape().Clone()...), nil
}

// Parameters returns nil.
func (l *ReLU) Parameters() []*Parameter { return nil }

func (l *ReLU) String() string { return fmt.Sprintf("ReLU(%s)", l.name) }

// Softmax normalizes each row of a (batch, classes) tensor into a
// probability distribution.
//
// The maximum of each row is subtracted before exponentiation for numerical
// stability.
type Softmax struct {
	name   string
	output []float64
	shape  []int
}

// NewSoftmax creates a row-wise softmax.
func NewSoftmax(name string) *Softmax {
	return &Softmax{name: name}
}

// Forward computes exp(x_i) / sum_j exp(x_j) per row.
func (l *Softmax) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	s := x.Shape()
	if len(s) != 2 {
		return nil, fmt.Errorf("%s: expected 2-D input, got shape %v", l.name, s)
	}
	n, k := s[0], s[1]
	in := values(x)
	out := make([]float64, len(in))
	for r := 0; r < n; r++ {
		row := in[r*k : (r+1)*k]
		dst := out[r*k : (r+1)*k]
		maxVal := math.Inf(-1)
		for _, v := range row {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for i, v := range row {
			dst[i] = math.Exp(v - maxVal)
			sum += dst[i]
		}
		for i := range dst {
			dst[i] /= sum
		}
	}
	if train {
		l.output = out
		l.shape = []int{n, k}
	}
	return newDense(out, n, k), nil
}

// Backward applies the softmax Jacobian: dx = p * (g - sum(g * p)).
func (l *Softmax) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.output == nil {
		return nil, errNoForward(l.name)
	}
	g := values(grad)
	if len(g) != len(l.output) {
		return nil, fmt.Errorf("%s: gradient has %d values, expected %d", l.name, len(g), len(l.output))
	}
	n, k := l.shape[0], l.shape[1]
	dx := make([]float64, len(g))
	for r := 0; r < n; r++ {
		p := l.output[r*k : (r+1)*k]
		gr := g[r*k : (r+1)*k]
		var dot float64
		for i := range p {
			dot += gr[i] * p[i]
		}
		for i := range p {
			dx[r*k+i] = p[i] * (gr[i] - dot)
		}
	}
	return newDense(dx, n, k), nil
}

// Parameters returns nil.
func (l *Softmax) Parameters() []*Parameter { return nil }

func (l *Softmax) String() string { return fmt.Sprintf("Softmax(%s)", l.name) }
