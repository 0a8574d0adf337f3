package arch

import (
	"fmt"
)

// Task selects the output head and training objective.
type Task int

const (
	// Regression predicts one continuous value per spectrum.
	Regression Task = iota
	// Classification predicts a probability per class plus an overflow slot.
	Classification
)

// String returns "regressor" or "classifier", the names used for artifacts.
func (t Task) String() string {
	switch t {
	case Regression:
		return "regressor"
	case Classification:
		return "classifier"
	default:
		return fmt.Sprintf("Task(%d)", int(t))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Task) MarshalText() ([]byte, error) {
	switch t {
	case Regression, Classification:
		return []byte(t.String()), nil
	default:
		return nil, fmt.Errorf("arch: unknown task %d", int(t))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Task) UnmarshalText(text []byte) error {
	switch string(text) {
	case "regressor":
		*t = Regression
	case "classifier":
		*t = Classification
	default:
		return fmt.Errorf("arch: unknown task %q", text)
	}
	return nil
}

// Head describes the output layer. For regression Width is 1; for
// classification it is the one-hot width of the label reductor.
type Head struct {
	Task  Task `json:"task"`
	Width int  `json:"width"`
}

// Validate checks that the width fits the task.
func (h Head) Validate() error {
	switch h.Task {
	case Regression:
		if h.Width != 1 {
			return &ConfigError{Field: "head", Reason: fmt.Sprintf("regression output width is %d, expected 1", h.Width)}
		}
	case Classification:
		if h.Width < 2 {
			return &ConfigError{Field: "head", Reason: fmt.Sprintf("classification output width is %d, expected at least 2", h.Width)}
		}
	default:
		return &ConfigError{Field: "head", Reason: fmt.Sprintf("unknown task %d", int(h.Task))}
	}
	return nil
}

// Kind identifies a layer type in a plan.
type Kind int

// Layer kinds, in the order they appear in a plan.
const (
	KindConv Kind = iota
	KindReLU
	KindDropout
	KindMaxPool
	KindFlatten
	KindDense
	KindSoftmax
)

var kindNames = [...]string{"conv2d", "relu", "dropout", "maxpool2d", "flatten", "dense", "softmax"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("arch: unknown layer kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("arch: unknown layer kind %q", text)
}

// LayerSpec is the declarative description of one planned layer.
//
// Shapes exclude the batch axis: spatial activations are (1, width,
// channels), dense activations are (features).
type LayerSpec struct {
	Kind        Kind    `json:"kind"`
	Name        string  `json:"name"`
	Filters     int     `json:"filters,omitempty"`
	Kernel      int     `json:"kernel,omitempty"`
	Pool        int     `json:"pool,omitempty"`
	Units       int     `json:"units,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	L2          float64 `json:"l2,omitempty"`
	InputShape  []int   `json:"input_shape"`
	OutputShape []int   `json:"output_shape"`
	Params      int     `json:"params"`
}

// LayerShapeError reports a convolution kernel or pooling window larger
// than the spectral width that reaches it.
type LayerShapeError struct {
	Layer     int    // Convolutional block index
	Kind      string // "conv" or "pool"
	Required  int    // Kernel or window size
	Available int    // Width reaching the layer
}

// Error implements the error interface.
func (e *LayerShapeError) Error() string {
	return fmt.Sprintf("arch: %s layer %d needs width %d, only %d available", e.Kind, e.Layer, e.Required, e.Available)
}

// Plan lays out the network for spectra of the given width.
//
// For every convolutional block i it emits conv → ReLU → dropout → maxpool,
// then flatten, then dense(L2) → ReLU → dropout for every hidden width,
// then the output dense layer (linear for regression, followed by softmax
// for classification).
//
// Shapes are checked block by block before any layer exists: the kernel of
// conv i must fit the width surviving block i-1, and the window of pool i
// must fit the width surviving conv i. A violation returns a
// *LayerShapeError.
func Plan(cfg Config, width int, head Head) ([]LayerSpec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := head.Validate(); err != nil {
		return nil, err
	}
	if width <= 0 {
		return nil, &ConfigError{Field: "input width", Reason: fmt.Sprintf("%d is not positive", width)}
	}

	var specs []LayerSpec
	w, c := width, 1
	for i := range cfg.Filters {
		k, p, f := cfg.KernelSizes[i], cfg.PoolSizes[i], cfg.Filters[i]
		if k > w {
			return nil, &LayerShapeError{Layer: i, Kind: "conv", Required: k, Available: w}
		}
		convOut := w - k + 1
		if p > convOut {
			return nil, &LayerShapeError{Layer: i, Kind: "pool", Required: p, Available: convOut}
		}
		poolOut := convOut / p

		specs = append(specs,
			LayerSpec{
				Kind: KindConv, Name: fmt.Sprintf("conv_%d", i), Filters: f, Kernel: k,
				InputShape: []int{1, w, c}, OutputShape: []int{1, convOut, f}, Params: f*k*c + f,
			},
			LayerSpec{Kind: KindReLU, Name: fmt.Sprintf("relu_conv_%d", i), InputShape: []int{1, convOut, f}, OutputShape: []int{1, convOut, f}},
			LayerSpec{
				Kind: KindDropout, Name: fmt.Sprintf("dropout_conv_%d", i), Rate: cfg.ConvDropout[i],
				InputShape: []int{1, convOut, f}, OutputShape: []int{1, convOut, f},
			},
			LayerSpec{
				Kind: KindMaxPool, Name: fmt.Sprintf("pool_%d", i), Pool: p,
				InputShape: []int{1, convOut, f}, OutputShape: []int{1, poolOut, f},
			},
		)
		w, c = poolOut, f
	}

	features := w * c
	specs = append(specs, LayerSpec{Kind: KindFlatten, Name: "flatten", InputShape: []int{1, w, c}, OutputShape: []int{features}})

	for i, units := range cfg.Hidden {
		specs = append(specs,
			LayerSpec{
				Kind: KindDense, Name: fmt.Sprintf("dense_%d", i), Units: units, L2: cfg.L2,
				InputShape: []int{features}, OutputShape: []int{units}, Params: features*units + units,
			},
			LayerSpec{Kind: KindReLU, Name: fmt.Sprintf("relu_dense_%d", i), InputShape: []int{units}, OutputShape: []int{units}},
			LayerSpec{
				Kind: KindDropout, Name: fmt.Sprintf("dropout_dense_%d", i), Rate: cfg.DenseDropout,
				InputShape: []int{units}, OutputShape: []int{units},
			},
		)
		features = units
	}

	specs = append(specs, LayerSpec{
		Kind: KindDense, Name: "output", Units: head.Width,
		InputShape: []int{features}, OutputShape: []int{head.Width}, Params: features*head.Width + head.Width,
	})
	if head.Task == Classification {
		specs = append(specs, LayerSpec{Kind: KindSoftmax, Name: "softmax", InputShape: []int{head.Width}, OutputShape: []int{head.Width}})
	}
	return specs, nil
}
