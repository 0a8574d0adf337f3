package nn

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Flatten collapses every axis after the batch axis: (n, ...) -> (n, prod(...)).
type Flatten struct {
	name    string
	inShape []int
}

// NewFlatten creates a Flatten layer.
func NewFlatten(name string) *Flatten {
	return &Flatten{name: name}
}

// Forward reshapes x into a matrix. Row-major order is preserved.
func (l *Flatten) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	s := x.Shape()
	if len(s) < 2 {
		return nil, fmt.Errorf("%s: expected at least 2-D input, got shape %v", l.name, s)
	}
	features := 1
	for _, d := range s[1:] {
		features *= d
	}
	out := append([]float64(nil), values(x)...)
	if train {
		l.inShape = s.Clone()
	}
	return newDense(out, s[0], features), nil
}

// Backward restores the original shape.
func (l *Flatten) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.inShape == nil {
		return nil, errNoForward(l.name)
	}
	dx := append([]float64(nil), values(grad)...)
	return newDense(dx, l.inShape...), nil
}

// Parameters returns nil.
func (l *Flatten) Parameters() []*Parameter { return nil }

func (l *Flatten) String() string { return fmt.Sprintf("Flatten(%s)", l.name) }
