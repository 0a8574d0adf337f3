package nn

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// Dense is a fully connected layer: y = x·W + b.
//
// where:
//   - x has shape (batch, in)
//   - W has shape (in, out)
//   - b has shape (out)
//
// An optional L2 coefficient adds l2·ΣW² to the loss (see Penalty) and
// 2·l2·W to the weight gradient. The bias is not regularized.
//
// Example:
//
//	d := nn.NewDense("dense_0", 128, 40, 1e-4, rng)
//	y, err := d.Forward(x, true) // (batch, 40)
type Dense struct {
	name string
	in   int
	out  int
	l2   float64

	weight *Parameter
	bias   *Parameter

	input *mat.Dense
}

// NewDense creates a fully connected layer with Xavier weights and zero bias.
//
// Parameters:
//   - name: Prefix for the parameter names
//   - in: Input features
//   - out: Output units
//   - l2: Weight decay coefficient, 0 to disable
//   - rng: Source for weight initialization
func NewDense(name string, in, out int, l2 float64, rng *rand.Rand) *Dense {
	if in <= 0 || out <= 0 {
		panic(fmt.Sprintf("nn.NewDense: invalid dimensions in=%d out=%d", in, out))
	}
	return &Dense{
		name:   name,
		in:     in,
		out:    out,
		l2:     l2,
		weight: NewParameter(name+".weight", []int{in, out}, Xavier(in, out, in*out, rng)),
		bias:   NewParameter(name+".bias", []int{out}, Zeros(out)),
	}
}

// Forward computes x·W + b.
func (l *Dense) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	s := x.Shape()
	if len(s) != 2 || s[1] != l.in {
		return nil, fmt.Errorf("%s: expected input shape (n, %d), got %v", l.name, l.in, s)
	}
	n := s[0]
	xm := mat.NewDense(n, l.in, append([]float64(nil), values(x)...))
	w := mat.NewDense(l.in, l.out, l.weight.value)

	y := mat.NewDense(n, l.out, nil)
	y.Mul(xm, w)
	b := l.bias.value
	y.Apply(func(_, j int, v float64) float64 { return v + b[j] }, y)

	if train {
		l.input = xm
	}
	return newDense(y.RawMatrix().Data, n, l.out), nil
}

// Backward accumulates dW = xᵀ·g + 2·l2·W and db = Σ g, and returns g·Wᵀ.
func (l *Dense) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.input == nil {
		return nil, errNoForward(l.name)
	}
	n, _ := l.input.Dims()
	if want := []int{n, l.out}; !sameShape(grad.Shape(), want) {
		return nil, fmt.Errorf("%s: gradient shape %v, expected %v", l.name, grad.Shape(), want)
	}
	g := mat.NewDense(n, l.out, append([]float64(nil), values(grad)...))
	w := mat.NewDense(l.in, l.out, l.weight.value)

	var dw mat.Dense
	dw.Mul(l.input.T(), g)
	if l.l2 != 0 {
		dw.Apply(func(i, j int, v float64) float64 { return v + 2*l.l2*w.At(i, j) }, &dw)
	}
	acc := mat.NewDense(l.in, l.out, l.weight.grad)
	acc.Add(acc, &dw)

	db := l.bias.grad
	for r := 0; r < n; r++ {
		for j := 0; j < l.out; j++ {
			db[j] += g.At(r, j)
		}
	}

	dx := mat.NewDense(n, l.in, nil)
	dx.Mul(g, w.T())
	return newDense(dx.RawMatrix().Data, n, l.in), nil
}

// Penalty returns l2·ΣW².
func (l *Dense) Penalty() float64 {
	if l.l2 == 0 {
		return 0
	}
	var sum float64
	for _, v := range l.weight.value {
		sum += v * v
	}
	return l.l2 * sum
}

// Parameters returns the weight and bias.
func (l *Dense) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Dense) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Dense) Bias() *Parameter { return l.bias }

// InFeatures returns the input width.
func (l *Dense) InFeatures() int { return l.in }

// OutFeatures returns the number of units.
func (l *Dense) OutFeatures() int { return l.out }

func (l *Dense) String() string {
	return fmt.Sprintf("Dense(%s, in=%d, out=%d, l2=%g)", l.name, l.in, l.out, l.l2)
}
