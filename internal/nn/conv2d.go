package nn

import (
	"fmt"
	"math/rand"

	"gorgonia.org/tensor"
)

// Conv2D is a 1×k convolution over NHWC spectra with valid padding and
// stride 1.
//
// Input shape (n, 1, w, inChannels) produces output shape
// (n, 1, w-k+1, filters). The kernel never spans more than one row, so it
// slides along the spectral axis only.
//
// Weights are laid out as [filters][kernel][inChannels] and initialized with
// Xavier; biases start at zero.
//
// Example:
//
//	conv := nn.NewConv2D("conv_0", 1, 8, 10, rng)
//	out, err := conv.Forward(x, true) // (n, 1, w-9, 8)
type Conv2D struct {
	name       string
	inChannels int
	filters    int
	kernel     int
	weight     *Parameter
	bias       *Parameter

	input *tensor.Dense
}

// NewConv2D creates a convolution layer.
//
// Parameters:
//   - name: Prefix for the parameter names
//   - inChannels: Channels of the incoming activation
//   - filters: Number of output channels
//   - kernel: Kernel width along the spectral axis
//   - rng: Source for weight initialization
func NewConv2D(name string, inChannels, filters, kernel int, rng *rand.Rand) *Conv2D {
	if inChannels <= 0 || filters <= 0 || kernel <= 0 {
		panic(fmt.Sprintf("nn.NewConv2D: invalid dimensions in=%d filters=%d kernel=%d", inChannels, filters, kernel))
	}
	n := filters * kernel * inChannels
	return &Conv2D{
		name:       name,
		inChannels: inChannels,
		filters:    filters,
		kernel:     kernel,
		weight:     NewParameter(name+".weight", []int{filters, kernel, inChannels}, Xavier(kernel*inChannels, kernel*filters, n, rng)),
		bias:       NewParameter(name+".bias", []int{filters}, Zeros(filters)),
	}
}

// Forward computes the valid convolution.
func (l *Conv2D) Forward(x *tensor.Dense, train bool) (*tensor.Dense, error) {
	n, w, c, err := spectralShape(l.name, x)
	if err != nil {
		return nil, err
	}
	if c != l.inChannels {
		return nil, fmt.Errorf("%s: expected %d input channels, got %d", l.name, l.inChannels, c)
	}
	if l.kernel > w {
		return nil, fmt.Errorf("%s: kernel %d exceeds input width %d", l.name, l.kernel, w)
	}

	in := values(x)
	wt := l.weight.value
	b := l.bias.value
	ow := w - l.kernel + 1
	out := make([]float64, n*ow*l.filters)

	for s := 0; s < n; s++ {
		for o := 0; o < ow; o++ {
			dst := out[(s*ow+o)*l.filters : (s*ow+o+1)*l.filters]
			for f := 0; f < l.filters; f++ {
				sum := b[f]
				for j := 0; j < l.kernel; j++ {
					src := in[(s*w+o+j)*c : (s*w+o+j+1)*c]
					k := wt[(f*l.kernel+j)*c : (f*l.kernel+j+1)*c]
					for ch := range src {
						sum += src[ch] * k[ch]
					}
				}
				dst[f] = sum
			}
		}
	}

	if train {
		l.input = x
	}
	return newDense(out, n, 1, ow, l.filters), nil
}

// Backward accumulates weight and bias gradients and returns dL/dx.
func (l *Conv2D) Backward(grad *tensor.Dense) (*tensor.Dense, error) {
	if l.input == nil {
		return nil, errNoForward(l.name)
	}
	n, w, c, _ := spectralShape(l.name, l.input)
	ow := w - l.kernel + 1
	if want := []int{n, 1, ow, l.filters}; !sameShape(grad.Shape(), want) {
		return nil, fmt.Errorf("%s: gradient shape %v, expected %v", l.name, grad.Shape(), want)
	}

	in := values(l.input)
	g := values(grad)
	wt := l.weight.value
	dw := l.weight.grad
	db := l.bias.grad
	dx := make([]float64, len(in))

	for s := 0; s < n; s++ {
		for o := 0; o < ow; o++ {
			gRow := g[(s*ow+o)*l.filters : (s*ow+o+1)*l.filters]
			for f, gv := range gRow {
				if gv == 0 {
					continue
				}
				db[f] += gv
				for j := 0; j < l.kernel; j++ {
					base := (s*w + o + j) * c
					kb := (f*l.kernel + j) * c
					for ch := 0; ch < c; ch++ {
						dw[kb+ch] += gv * in[base+ch]
						dx[base+ch] += gv * wt[kb+ch]
					}
				}
			}
		}
	}
	return newDense(dx, n, 1, w, c), nil
}

// Parameters returns the kernel and bias.
func (l *Conv2D) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// Weight returns the kernel parameter.
func (l *Conv2D) Weight() *Parameter { return l.weight }

// Bias returns the bias parameter.
func (l *Conv2D) Bias() *Parameter { return l.bias }

func (l *Conv2D) String() string {
	return fmt.Sprintf("Conv2D(%s, in=%d, filters=%d, kernel=1x%d)", l.name, l.inChannels, l.filters, l.kernel)
}
