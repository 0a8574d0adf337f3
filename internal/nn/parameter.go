package nn

// Parameter represents a trainable tensor of a layer together with its
// accumulated gradient.
//
// Values are stored flat in row-major order; Shape describes how they are
// laid out.
//
// Example:
//
//	w := nn.NewParameter("dense_0.weight", []int{4, 2}, make([]float64, 8))
//	w.Grad()[0] += 0.5
//	w.ZeroGrad()
type Parameter struct {
	name  string
	shape []int
	value []float64
	grad  []float64
}

// NewParameter creates a parameter over value. The slice is used in place.
func NewParameter(name string, shape []int, value []float64) *Parameter {
	return &Parameter{
		name:  name,
		shape: append([]int(nil), shape...),
		value: value,
		grad:  make([]float64, len(value)),
	}
}

// Name returns the fully qualified parameter name, e.g. "conv_0.weight".
func (p *Parameter) Name() string {
	return p.name
}

// Shape returns a copy of the parameter shape.
func (p *Parameter) Shape() []int {
	return append([]int(nil), p.shape...)
}

// Value returns the live parameter values.
func (p *Parameter) Value() []float64 {
	return p.value
}

// Grad returns the live gradient buffer.
func (p *Parameter) Grad() []float64 {
	return p.grad
}

// Size returns the number of scalar values.
func (p *Parameter) Size() int {
	return len(p.value)
}

// ZeroGrad clears the accumulated gradient.
func (p *Parameter) ZeroGrad() {
	for i := range p.grad {
		p.grad[i] = 0
	}
}
