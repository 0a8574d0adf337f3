package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/batch"
	"github.com/born-ml/spectra/internal/config"
	"github.com/born-ml/spectra/internal/infer"
	"github.com/born-ml/spectra/internal/train"
)

var rule = strings.Repeat("=", 56)

func printTraining(w io.Writer, cfg config.Config, res *train.Result, elapsed time.Duration) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  CNN - %s - Training Summary\n", title(res.Task))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  Training set samples: %d, features: %d\n", res.TrainSamples, res.Features)
	fmt.Fprintf(w, "  Validation set samples: %d\n", res.ValidSamples)
	if res.Task == arch.Classification {
		fmt.Fprintf(w, "  Classes: %d in training, %d in validation, %d total\n",
			res.Classes.Train, res.Classes.Valid, res.Classes.Total)
	}
	fmt.Fprintf(w, "  Epochs: %d, batch size: %d\n", cfg.Epochs, batchSize(cfg, res.TrainSamples))

	s := res.Summary
	fmt.Fprintln(w, "\n  Training")
	printStats(w, "loss", s.Loss, "min")
	printStats(w, s.MetricName, s.Metric, bestWord(res.Task))
	if s.HasValid {
		fmt.Fprintln(w, "\n  Validation")
		printStats(w, "loss", s.ValLoss, "min")
		printStats(w, s.MetricName, s.ValMetric, bestWord(res.Task))
	}

	if len(res.Validation) > 0 {
		fmt.Fprintln(w, "\n  Real value\t| Predicted value\t| Probability [%]")
		fmt.Fprintln(w, "  "+strings.Repeat("-", 54))
		for _, row := range res.Validation {
			fmt.Fprintf(w, "  %s\t\t| %s\t\t| %.2f\n", values(row.Real), values(row.Predicted), 100*row.Probability)
		}
	}

	fmt.Fprintf(w, "\n  Total time: %.1fs\n", elapsed.Seconds())
	if res.Quantized != nil {
		fmt.Fprintln(w, "  Quantized model saved")
	}
	fmt.Fprintln(w, rule)
}

func printStats(w io.Writer, name string, s train.Stats, best string) {
	fmt.Fprintf(w, "    %-9s average: %.4f, %s: %.4f, last: %.4f\n", name, s.Average, best, s.Best, s.Last)
}

func bestWord(task arch.Task) string {
	if task == arch.Classification {
		return "max"
	}
	return "min"
}

func batchSize(cfg config.Config, n int) int {
	if cfg.FullSizeBatch || cfg.BatchSize > n {
		return n
	}
	return cfg.BatchSize
}

func title(task arch.Task) string {
	if task == arch.Regression {
		return "Regressor"
	}
	return "Classifier"
}

func values(v []float64) string {
	if v == nil {
		return "unknown"
	}
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%.2f", x)
	}
	return strings.Join(parts, " ")
}

func printPredictions(w io.Writer, task arch.Task, preds []infer.Prediction) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  CNN - %s - Prediction\n", title(task))
	fmt.Fprintln(w, rule)
	for _, p := range preds {
		if task == arch.Regression {
			fmt.Fprintf(w, "  Predicted value (normalized) = %.2f\n", p.Value)
			continue
		}
		fmt.Fprintln(w, "  Prediction\t| Probability [%]")
		fmt.Fprintln(w, "  "+strings.Repeat("-", 29))
		for _, c := range p.Roster {
			fmt.Fprintf(w, "  %s\t\t| %.2f\n", values(c.Label), 100*c.Probability)
		}
		if p.Known {
			fmt.Fprintf(w, "\n  Predicted value = %s (probability = %.2f%%)\n\n", values(p.Label), 100*p.Probability)
		} else {
			fmt.Fprintf(w, "\n  No predicted value (probability = %.2f%%)\n\n", 100*p.Probability)
		}
	}
	fmt.Fprintln(w, rule)
}

func printBatch(w io.Writer, t *batch.Table) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "  CNN - %s - Batch Prediction\n", title(t.Task))
	fmt.Fprintln(w, rule)
	for _, r := range t.Rows {
		p := r.Prediction
		switch {
		case t.Task == arch.Regression:
			fmt.Fprintf(w, "  %s: predicted value = %.2f\n", r.File, p.Value)
		case p.Known:
			fmt.Fprintf(w, "  %s: predicted value = %s (probability = %.2f%%)\n", r.File, values(p.Label), 100*p.Probability)
		default:
			fmt.Fprintf(w, "  %s: no predicted value (probability = %.2f%%)\n", r.File, 100*p.Probability)
		}
	}
	for _, s := range t.Skipped {
		fmt.Fprintf(w, "  %s: skipped (%v)\n", s.File, s.Err)
	}
	fmt.Fprintln(w, rule)
}
