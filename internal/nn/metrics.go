package nn

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gorgonia.org/tensor"
)

// Metric scores a batch of predictions. Higher is not necessarily better;
// see the individual metrics.
type Metric interface {
	Compute(pred, target *tensor.Dense) (float64, error)
	Name() string
}

// Accuracy is the fraction of rows whose argmax matches the target argmax.
type Accuracy struct{}

// Compute returns the categorical accuracy in [0, 1].
func (Accuracy) Compute(pred, target *tensor.Dense) (float64, error) {
	p, t, err := pair("accuracy", pred, target)
	if err != nil {
		return 0, err
	}
	n, k := pred.Shape()[0], pred.Shape()[1]
	hits := 0
	for r := 0; r < n; r++ {
		if floats.MaxIdx(p[r*k:(r+1)*k]) == floats.MaxIdx(t[r*k:(r+1)*k]) {
			hits++
		}
	}
	return float64(hits) / float64(n), nil
}

// Name returns "accuracy".
func (Accuracy) Name() string { return "accuracy" }

// MeanAbsoluteError is mean(|pred - target|). Lower is better.
type MeanAbsoluteError struct{}

// Compute returns the mean absolute error.
func (MeanAbsoluteError) Compute(pred, target *tensor.Dense) (float64, error) {
	p, t, err := pair("mae", pred, target)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i := range p {
		sum += math.Abs(p[i] - t[i])
	}
	return sum / float64(len(p)), nil
}

// Name returns "mae".
func (MeanAbsoluteError) Name() string { return "mae" }
