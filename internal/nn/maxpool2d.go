package nn

import (
	"fmt"

	"gorgonia.org/tensor"
)

// MaxPool2D is a 1×p max pooling with stride p along the spectral axis.
//
// Input (n, 1, w, c) produces (n, 1, floor(w/p), c); trailing positions that
// do not fill a window are dropped.
type MaxPool2D struct {
	name string
	pool int

	inShape []int
	argmax  []int
}

// NewMaxPool2D creates a pooling layer with window and stride pool.
func NewMaxPool2D(name string, pool int) *MaxPool2D {
	if pool <= 0 {
		panic(fmt.Sprintf("nn.NewMaxPool2D: invalid pool size %d", pool))
	}
	return &MaxPool2D{name: name, pool: pool}
}

// Forward takes the maximum of each window per channel.
func (l *MaxPool2D) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	n, w, c, err := spectralShape(l.name, x)
	if err != nil {
		return nil, err
	}
	if l.pool > w {
		return nil, fmt.Errorf("%s: pool %d exceeds input width %d", l.name, l.pool, w)
	}

	in := values(x)
	ow := w / l.pool
	out := make([]float64, n*ow*c)
	arg := make([]int, len(out))

	for s := 0; s < n; s++ {
		for o := 0; o < ow; o++ {
			for ch := 0; ch < c; ch++ {
				best := (s*w+o*l.pool)*c + ch
				for j := 1; j < l.pool; j++ {
					idx := (s*w+o*l.pool+j)*c + ch
					if in[idx] > in[best] {
						best = idx
					}
				}
				dst := (s*ow+o)*c + ch
				out[dst] = in[best]
				arg[dst] = best
			}
		}
	}

	if train {
		l.inShape = []int{n, 1, w, c}
		l.argmax = arg
	}
	return newDense(out, n, 1, ow, c), nil
}

// Backward routes each gradient to the position that won its window.
func (l *MaxPool2D) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.argmax == nil {
		return nil, errNoForward(l.name)
	}
	g := values(grad)
	if len(g) != len(l.argmax) {
		return nil, fmt.Errorf("%s: gradient has %d values, expected %d", l.name, len(g), len(l.argmax))
	}
	size := 1
	for _, d := range l.inShape {
		size *= d
	}
	dx := make([]float64, size)
	for i, src := range l.argmax {
		dx[src] += g[i]
	}
	return newDense(dx, l.inShape...), nil
}

// Parameters returns nil; pooling has no weights.
func (l *MaxPool2D) Parameters() []*Parameter { return nil }

func (l *MaxPool2D) String() string {
	return fmt.Sprintf("MaxPool2D(%s, pool=1x%d)", l.name, l.pool)
}
