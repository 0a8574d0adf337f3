package arch

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/spectra/internal/nn"
)

// Build instantiates a plan produced by Plan. rng seeds weight
// initialization and dropout masks.
func Build(specs []LayerSpec, rng *rand.Rand) (*nn.Sequential, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("arch: empty plan")
	}
	net := nn.NewSequential()
	for i, s := range specs {
		var layer nn.Layer
		switch s.Kind {
		case KindConv:
			if len(s.InputShape) != 3 {
				return nil, fmt.Errorf("arch: layer %d (%s): conv input shape %v", i, s.Name, s.InputShape)
			}
			layer = nn.NewConv2D(s.Name, s.InputShape[2], s.Filters, s.Kernel, rng)
		case KindReLU:
			layer = nn.NewReLU(s.Name)
		case KindDropout:
			layer = nn.NewDropout(s.Name, s.Rate, rng)
		case KindMaxPool:
			layer = nn.NewMaxPool2D(s.Name, s.Pool)
		case KindFlatten:
			layer = nn.NewFlatten(s.Name)
		case KindDense:
			if len(s.InputShape) != 1 {
				return nil, fmt.Errorf("arch: layer %d (%s): dense input shape %v", i, s.Name, s.InputShape)
			}
			layer = nn.NewDense(s.Name, s.InputShape[0], s.Units, s.L2, rng)
		case KindSoftmax:
			layer = nn.NewSoftmax(s.Name)
		default:
			return nil, fmt.Errorf("arch: layer %d (%s): unknown kind %v", i, s.Name, s.Kind)
		}
		net.Add(layer)
	}
	return net, nil
}
