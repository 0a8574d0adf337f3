// Package nn provides the layers, losses and metrics the spectral CNN is
// built from.
//
// All layers operate on float64 gorgonia tensors in NHWC layout. Spectra
// enter as (batch, 1, width, channels); after Flatten the activations are
// (batch, features).
//
// Layers cache what they need from the last training Forward call so that
// Backward can compute gradients. A layer is therefore not safe for
// concurrent use.
package nn

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Layer is a differentiable building block of a Sequential network.
//
// Forward with train=true records the state needed by Backward. Backward
// receives the gradient of the loss with respect to the layer output,
// accumulates parameter gradients and returns the gradient with respect to
// the layer input.
type Layer interface {
	Forward(x *tensor.Dense, train bool) (*tensor.Dense, error)
	Backward(grad *tensor.Dense) (*tensor.Dense, error)
	Parameters() []*Parameter
	String() string
}

// Regularizer is implemented by layers that add a penalty term to the loss.
type Regularizer interface {
	Penalty() float64
}

func newDense(data []float64, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// values returns the float64 backing of t. Tensors whose shape is all ones
// may report a scalar from Data.
func values(t *tensor.Dense) []float64 {
	switch v := t.Data().(type) {
	case []float64:
		return v
	case float64:
		return []float64{v}
	default:
		panic(fmt.Sprintf("nn: expected float64 tensor, got %T", v))
	}
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// spectralShape checks that x is (n, 1, w, c) and returns its dimensions.
func spectralShape(layer string, x *tensor.Dense) (n, w, c int, err error) {
	s := x.Shape()
	if len(s) != 4 || s[1] != 1 {
		return 0, 0, 0, fmt.Errorf("%s: expected input shape (n, 1, w, c), got %v", layer, s)
	}
	return s[0], s[2], s[3], nil
}

func errNoForward(layer string) error {
	return fmt.Errorf("%s: Backward called without a training Forward", layer)
}
