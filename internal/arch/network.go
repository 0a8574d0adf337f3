package arch

import (
	"fmt"
	"math/rand"
	"strings"

	"gorgonia.org/tensor"

	"github.com/born-ml/spectra/internal/nn"
	"github.com/born-ml/spectra/internal/optim"
)

// Network is an assembled, compiled model: its plan, its layers and the
// objective it trains against.
type Network struct {
	Config     Config
	Head       Head
	InputWidth int
	Specs      []LayerSpec
	Net        *nn.Sequential
	Loss       nn.Loss
	Metric     nn.Metric
	Optimizer  *optim.Adam
}

// Assemble plans, builds and compiles a network for spectra of the given
// width.
//
// Regression heads train with mean squared error and report mean absolute
// error; classification heads train with categorical cross-entropy and
// report accuracy. Both use Adam with the configured learning rate and
// decay.
func Assemble(cfg Config, width int, head Head, rng *rand.Rand) (*Network, error) {
	specs, err := Plan(cfg, width, head)
	if err != nil {
		return nil, err
	}
	net, err := Build(specs, rng)
	if err != nil {
		return nil, err
	}

	n := &Network{
		Config:     cfg,
		Head:       head,
		InputWidth: width,
		Specs:      specs,
		Net:        net,
		Optimizer:  optim.NewAdam(net.Parameters(), optim.AdamConfig{LR: cfg.LearningRate, Decay: cfg.LRDecay}),
	}
	if head.Task == Classification {
		n.Loss, n.Metric = nn.NewCrossEntropyLoss(), nn.Accuracy{}
	} else {
		n.Loss, n.Metric = nn.NewMSELoss(), nn.MeanAbsoluteError{}
	}
	return n, nil
}

// OutputWidth returns the width of the final layer.
func (n *Network) OutputWidth() int {
	return n.Head.Width
}

// CheckInput verifies that x is a (batch, 1, InputWidth, 1) tensor.
func (n *Network) CheckInput(x *tensor.Dense) error {
	s := x.Shape()
	if len(s) != 4 || s[1] != 1 || s[2] != n.InputWidth || s[3] != 1 {
		return fmt.Errorf("arch: expected input shape (n, 1, %d, 1), got %v", n.InputWidth, s)
	}
	return nil
}

// Predict runs an inference pass. Dropout is inactive.
func (n *Network) Predict(x *tensor.Dense) (*tensor.Dense, error) {
	if err := n.CheckInput(x); err != nil {
		return nil, err
	}
	return n.Net.Forward(x, false)
}

// TrainBatch performs one optimizer step on a mini-batch and returns the
// regularized loss and the metric on the batch.
func (n *Network) TrainBatch(x, y *tensor.Dense) (loss, metric float64, err error) {
	if err := n.CheckInput(x); err != nil {
		return 0, 0, err
	}
	n.Optimizer.ZeroGrad()

	pred, err := n.Net.Forward(x, true)
	if err != nil {
		return 0, 0, err
	}
	if loss, err = n.Loss.Forward(pred, y); err != nil {
		return 0, 0, err
	}
	if metric, err = n.Metric.Compute(pred, y); err != nil {
		return 0, 0, err
	}
	grad, err := n.Loss.Backward(pred, y)
	if err != nil {
		return 0, 0, err
	}
	if _, err := n.Net.Backward(grad); err != nil {
		return 0, 0, err
	}
	n.Optimizer.Step()
	return loss + n.Net.Penalty(), metric, nil
}

// Evaluate returns the regularized loss and the metric without updating
// any weights.
func (n *Network) Evaluate(x, y *tensor.Dense) (loss, metric float64, err error) {
	pred, err := n.Predict(x)
	if err != nil {
		return 0, 0, err
	}
	if loss, err = n.Loss.Forward(pred, y); err != nil {
		return 0, 0, err
	}
	if metric, err = n.Metric.Compute(pred, y); err != nil {
		return 0, 0, err
	}
	return loss + n.Net.Penalty(), metric, nil
}

// Summary returns a human-readable table of the planned layers.
func (n *Network) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s CNN\n", n.Head.Task)
	fmt.Fprintf(&b, "Input Shape: %v\n", []int{1, n.InputWidth, 1})
	fmt.Fprintf(&b, "%-18s %-10s %-16s %10s\n", "Layer", "Kind", "Output Shape", "Params")
	b.WriteString(strings.Repeat("=", 57) + "\n")
	total := 0
	for _, s := range n.Specs {
		fmt.Fprintf(&b, "%-18s %-10s %-16s %10d\n", s.Name, s.Kind, fmt.Sprint(s.OutputShape), s.Params)
		total += s.Params
	}
	b.WriteString(strings.Repeat("=", 57) + "\n")
	fmt.Fprintf(&b, "Total params: %d\n", total)
	fmt.Fprintf(&b, "Loss: %s, metric: %s, optimizer: adam(lr=%g, decay=%g)\n",
		n.Loss.Name(), n.Metric.Name(), n.Config.LearningRate, n.Config.LRDecay)
	return b.String()
}
