// Package logging builds the structured logger shared by the training,
// inference and batch components.
//
// A single *slog.Logger is created by the command and handed to every
// component explicitly. Components log with the attribute keys defined
// here so that a training run and a batch prediction produce records that
// can be filtered the same way:
//
//	logger.Info("training finished",
//	    logging.TaskKey, "classifier",
//	    logging.SamplesKey, 120,
//	)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Model and operation context.
const (
	// TaskKey is the run mode: "classifier" or "regressor".
	TaskKey = "model.task"

	// PathKey is the quantized or full-precision execution path.
	PathKey = "model.path"

	// OperationKey names the pipeline step: "load", "fit", "predict", "batch".
	OperationKey = "ml.operation"
)

// Data shape.
const (
	SamplesKey      = "data.samples"
	ValidSamplesKey = "data.valid_samples"
	FeaturesKey     = "data.features"
	ClassesKey      = "data.classes"
	FileKey         = "file.path"
)

// Batch runs.
const (
	DirKey     = "batch.dir"
	SkippedKey = "batch.skipped"
)

// Training progress.
const (
	EpochKey     = "train.epoch"
	LossKey      = "train.loss"
	MetricKey    = "train.metric"
	ValLossKey   = "valid.loss"
	ValMetricKey = "valid.metric"
)

// ErrorKey carries the error attached to a warning or failure record.
const ErrorKey = "error"

// ParseLevel converts a textual level ("debug", "info", "warn", "error").
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
