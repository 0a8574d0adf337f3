package nn

import (
	"fmt"
	"sort"

	"gorgonia.org/tensor"
)

// Sequential chains layers so that each layer's output feeds the next.
//
// Example:
//
//	net := nn.NewSequential(
//	    nn.NewConv2D("conv_0", 1, 4, 10, rng),
//	    nn.NewReLU("relu_0"),
//	    nn.NewMaxPool2D("pool_0", 20),
//	    nn.NewFlatten("flatten"),
//	    nn.NewDense("output", 12, 1, 0, rng),
//	)
//	y, err := net.Forward(x, false)
type Sequential struct {
	layers []Layer
}

// TraceFunc observes the output of layer i during Trace. It may return a
// replacement tensor that is fed to the next layer instead.
type TraceFunc func(i int, layer Layer, out *tensor.Dense) (*tensor.Dense, error)

// NewSequential creates a Sequential container.
func NewSequential(layers ...Layer) *Sequential {
	return &Sequential{layers: layers}
}

// Add appends a layer.
func (s *Sequential) Add(layer Layer) {
	s.layers = append(s.layers, layer)
}

// Len returns the number of layers.
func (s *Sequential) Len() int {
	return len(s.layers)
}

// Layer returns the layer at index i.
func (s *Sequential) Layer(i int) Layer {
	if i < 0 || i >= len(s.layers) {
		panic(fmt.Sprintf("nn.Sequential.Layer: index %d out of range [0, %d)", i, len(s.layers)))
	}
	return s.layers[i]
}

// Layers returns a copy of the layer list.
func (s *Sequential) Layers() []Layer {
	return append([]Layer(nil), s.layers...)
}

// Forward runs x through every layer.
func (s *Sequential) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	out := x
	for i, l := range s.layers {
		var err error
		if out, err = l.Forward(out, train); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return out, nil
}

// Backward propagates grad from the last layer to the first and returns the
// gradient with respect to the network input.
func (s *Sequential) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	g := grad
	for i := len(s.layers) - 1; i >= 0; i-- {
		var err error
		if g, err = s.layers[i].Backward(g); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return g, nil
}

// Trace runs an inference pass and calls fn after every layer.
//
// Calibration uses it to record activation ranges; quantized execution uses
// it to round activations onto their integer grid between layers.
func (s *Sequential) Trace(x *tensor.Dense, fn TraceFunc) (*tensor.Dense, error) {
	out := x
	for i, l := range s.layers {
		var err error
		if out, err = l.Forward(out, false); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if fn == nil {
			continue
		}
		if out, err = fn(i, l, out); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return out, nil
}

// Parameters returns all trainable parameters in layer order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, l := range s.layers {
		params = append(params, l.Parameters()...)
	}
	return params
}

// ZeroGrad clears every parameter gradient.
func (s *Sequential) ZeroGrad() {
	for _, p := range s.Parameters() {
		p.ZeroGrad()
	}
}

// Penalty sums the regularization terms of all layers.
func (s *Sequential) Penalty() float64 {
	var sum float64
	for _, l := range s.layers {
		if r, ok := l.(Regularizer); ok {
			sum += r.Penalty()
		}
	}
	return sum
}

// CountParameters returns the number of trainable scalars.
func (s *Sequential) CountParameters() int {
	n := 0
	for _, p := range s.Parameters() {
		n += p.Size()
	}
	return n
}

// StateDict returns a copy of every parameter keyed by its name.
func (s *Sequential) StateDict() map[string]*tensor.Dense {
	state := make(map[string]*tensor.Dense)
	for _, p := range s.Parameters() {
		state[p.Name()] = newDense(append([]float64(nil), p.value...), p.shape...)
	}
	return state
}

// LoadStateDict copies values from state into the matching parameters.
//
// Every parameter must be present with an identical shape; extra entries
// are rejected as well.
func (s *Sequential) LoadStateDict(state map[string]*tensor.Dense) error {
	params := s.Parameters()
	if len(state) != len(params) {
		return fmt.Errorf("nn: state dict has %d tensors, network has %d parameters (%v)", len(state), len(params), stateNames(state))
	}
	for _, p := range params {
		t, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("nn: state dict is missing %q", p.Name())
		}
		if !sameShape(t.Shape(), p.shape) {
			return fmt.Errorf("nn: %q has shape %v, expected %v", p.Name(), t.Shape(), p.shape)
		}
		copy(p.value, values(t))
	}
	return nil
}

func stateNames(state map[string]*tensor.Dense) []string {
	names := make([]string, 0, len(state))
	for n := range state {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Sequential) String() string {
	out := "Sequential(\n"
	for i, l := range s.layers {
		out += fmt.Sprintf("  (%d): %s\n", i, l)
	}
	return out + ")"
}
