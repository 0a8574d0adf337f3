package train

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// History holds one value per epoch. Validation series are empty when no
// validation samples were available.
type History struct {
	Loss      []float64
	Metric    []float64
	ValLoss   []float64
	ValMetric []float64
}

// Stats summarizes a series. Best is the minimum for losses and mean
// absolute error and the maximum for accuracy.
type Stats struct {
	Average float64
	Best    float64
	Last    float64
}

// Summary is the descriptive digest of a training run.
type Summary struct {
	MetricName string
	Loss       Stats
	Metric     Stats
	ValLoss    Stats
	ValMetric  Stats
	HasValid   bool
}

// Summarize reduces a history. higherIsBetter selects how the metric's Best
// is chosen.
func Summarize(h History, metricName string, higherIsBetter bool) Summary {
	s := Summary{
		MetricName: metricName,
		Loss:       describe(h.Loss, false),
		Metric:     describe(h.Metric, higherIsBetter),
		HasValid:   len(h.ValLoss) > 0,
	}
	if s.HasValid {
		s.ValLoss = describe(h.ValLoss, false)
		s.ValMetric = describe(h.ValMetric, higherIsBetter)
	}
	return s
}

func describe(series []float64, max bool) Stats {
	if len(series) == 0 {
		return Stats{}
	}
	best := floats.Min(series)
	if max {
		best = floats.Max(series)
	}
	return Stats{
		Average: stat.Mean(series, nil),
		Best:    best,
		Last:    series[len(series)-1],
	}
}
