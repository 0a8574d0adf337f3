package nn

import (
	"fmt"
	"math"

	"gorgonia.org/tensor"
)

// Loss compares a prediction with its target.
//
// Forward returns the mean loss over the batch; Backward returns dL/dpred
// with the same shape as pred.
type Loss interface {
	Forward(pred, target *tensor.Dense) (float64, error)
	Backward(pred, target *tensor.Dense) (*tensor.Dense, error)
	Name() string
}

// Epsilon bounds probabilities away from 0 and 1 inside CrossEntropyLoss.
const Epsilon = 1e-7

// MSELoss is the mean squared error over every element.
type MSELoss struct{}

// NewMSELoss creates a mean squared error loss.
func NewMSELoss() *MSELoss { return &MSELoss{} }

// Forward returns mean((pred - target)²).
func (MSELoss) Forward(pred, target *tensor.Dense) (float64, error) {
	p, t, err := pair("mse", pred, target)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range p {
		d := p[i] - t[i]
		sum += d * d
	}
	return sum / float64(len(p)), nil
}

// Backward returns 2·(pred - target)/N.
func (MSELoss) Backward(pred, target *tensor.Dense) (*tensor.Dense, error) {
	p, t, err := pair("mse", pred, target)
	if err != nil {
		return nil, err
	}
	n := float64(len(p))
	g := make([]float64, len(p))
	for i := range p {
		g[i] = 2 * (p[i] - t[i]) / n
	}
	return newDense(g, pred.Shape().Clone()...), nil
}

// Name returns "mse".
func (MSELoss) Name() string { return "mse" }

// CrossEntropyLoss is the categorical cross-entropy of softmax
// probabilities against one-hot targets, averaged over the batch.
//
//	L = -1/N · Σ_n Σ_k t_nk · log(clip(p_nk))
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a categorical cross-entropy loss.
func NewCrossEntropyLoss() *CrossEntropyLoss { return &CrossEntropyLoss{} }

// Forward returns the mean cross-entropy.
func (CrossEntropyLoss) Forward(pred, target *tensor.Dense) (float64, error) {
	p, t, err := pair("categorical_crossentropy", pred, target)
	if err != nil {
		return 0, err
	}
	n := pred.Shape()[0]
	var sum float64
	for i := range p {
		if t[i] != 0 {
			sum -= t[i] * math.Log(clip(p[i]))
		}
	}
	return sum / float64(n), nil
}

// Backward returns -t/(N·clip(p)).
func (CrossEntropyLoss) Backward(pred, target *tensor.Dense) (*tensor.Dense, error) {
	p, t, err := pair("categorical_crossentropy", pred, target)
	if err != nil {
		return nil, err
	}
	n := float64(pred.Shape()[0])
	g := make([]float64, len(p))
	for i := range p {
		if t[i] != 0 {
			g[i] = -t[i] / (clip(p[i]) * n)
		}
	}
	return newDense(g, pred.Shape().Clone()...), nil
}

// Name returns "categorical_crossentropy".
func (CrossEntropyLoss) Name() string { return "categorical_crossentropy" }

func clip(p float64) float64 {
	return math.Min(math.Max(p, Epsilon), 1-Epsilon)
}

func pair(name string, pred, target *tensor.Dense) (p, t []float64, err error) {
	if len(pred.Shape()) != 2 {
		return nil, nil, fmt.Errorf("%s: expected 2-D prediction, got shape %v", name, pred.Shape())
	}
	if !sameShape(pred.Shape(), target.Shape()) {
		return nil, nil, fmt.Errorf("%s: prediction shape %v does not match target shape %v", name, pred.Shape(), target.Shape())
	}
	return values(pred), values(target), nil
}
