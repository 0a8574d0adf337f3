// Package infer runs a persisted model on new spectra.
//
// An Engine is opened once from a model directory and then serves any
// number of files. It runs either the full-precision network or the
// quantized artifact; both report probabilities and values in the same
// real units, so callers never need to know which path was taken.
package infer

import (
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gorgonia.org/tensor"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/config"
	"github.com/born-ml/spectra/internal/dataset"
	"github.com/born-ml/spectra/internal/format"
	"github.com/born-ml/spectra/internal/logging"
	"github.com/born-ml/spectra/internal/store"
)

// SchemaMismatchError reports input or artifacts that disagree with the
// persisted model.
type SchemaMismatchError struct {
	Field    string
	Expected int
	Actual   int
}

// Error implements the error interface.
func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("infer: %s mismatch: model expects %d, got %d", e.Field, e.Expected, e.Actual)
}

// Candidate is one entry of a classification roster.
type Candidate struct {
	Index       int
	Label       []float64 // nil for the overflow slot
	Probability float64
}

// Prediction is the decoded output for one spectrum.
type Prediction struct {
	File string

	// Regression
	Value float64

	// Classification
	Index       int
	Label       []float64
	Known       bool // false when the overflow slot won
	Probability float64
	Roster      []Candidate
}

// Engine predicts with a loaded model bundle.
type Engine struct {
	cfg    config.Config
	task   arch.Task
	bundle *store.Bundle
	logger *slog.Logger
}

// Open loads the model, axis and, for classification, the label reductor
// from st. The quantized artifact is used when cfg.UseQuantized is set.
func Open(cfg config.Config, st *store.Store, logger *slog.Logger) (*Engine, error) {
	bundle, err := st.Load(cfg.UseQuantized)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, task: st.Task, bundle: bundle, logger: logger}

	head, width := e.head()
	if head.Task != st.Task {
		return nil, fmt.Errorf("infer: model in %s is a %s, expected a %s", st.Dir, head.Task, st.Task)
	}
	expected := 1
	if bundle.Reductor != nil {
		expected = bundle.Reductor.OneHotWidth()
	}
	if head.Width != expected {
		return nil, &SchemaMismatchError{Field: "output width", Expected: expected, Actual: head.Width}
	}
	if width != len(bundle.Axis) {
		return nil, &SchemaMismatchError{Field: "spectral axis", Expected: width, Actual: len(bundle.Axis)}
	}

	path := "full"
	if e.Quantized() {
		path = "quantized"
	}
	logger.Info("model loaded",
		logging.OperationKey, "load",
		logging.TaskKey, st.Task.String(),
		logging.PathKey, path,
		logging.FeaturesKey, width,
	)
	return e, nil
}

func (e *Engine) head() (arch.Head, int) {
	if e.bundle.Quantized != nil {
		return e.bundle.Quantized.Head, e.bundle.Quantized.InputWidth
	}
	return e.bundle.Network.Head, e.bundle.Network.InputWidth
}

// Task returns the objective of the loaded model.
func (e *Engine) Task() arch.Task {
	return e.task
}

// Quantized reports whether predictions come from the quantized artifact.
func (e *Engine) Quantized() bool {
	return e.bundle.Quantized != nil
}

// Axis returns the spectral axis the model was trained on.
func (e *Engine) Axis() []float64 {
	return append([]float64(nil), e.bundle.Axis...)
}

// PredictFile loads every spectrum in path using the configured input
// layout and predicts each one.
func (e *Engine) PredictFile(path string) ([]Prediction, error) {
	features, err := e.load(path)
	if err != nil {
		return nil, err
	}
	preds, err := e.Predict(features)
	if err != nil {
		return nil, fmt.Errorf("infer: %s: %w", path, err)
	}
	for i := range preds {
		preds[i].File = path
	}
	e.logger.Debug("predicted", logging.FileKey, path, logging.SamplesKey, len(preds))
	return preds, nil
}

func (e *Engine) load(path string) ([][]float64, error) {
	var features [][]float64
	switch e.cfg.InputLayout {
	case config.LayoutXY:
		sp, err := dataset.LoadSpectrum(path)
		if err != nil {
			return nil, err
		}
		row, err := resample(sp, e.bundle.Axis)
		if err != nil {
			return nil, fmt.Errorf("infer: %s: %w", path, err)
		}
		features = [][]float64{row}
	default:
		ds, err := dataset.LoadTest(path, e.cfg.NumLabels)
		if err != nil {
			return nil, err
		}
		if ds.Width() != len(e.bundle.Axis) {
			return nil, &SchemaMismatchError{Field: "spectral axis", Expected: len(e.bundle.Axis), Actual: ds.Width()}
		}
		features = ds.Features
	}
	if e.cfg.Normalize {
		for i, row := range features {
			features[i] = dataset.Normalize(row)
		}
	}
	return features, nil
}

// resample interpolates sp linearly onto axis. Points outside the measured
// range take the nearest measured intensity.
func resample(sp *dataset.Spectrum, axis []float64) ([]float64, error) {
	var pl interp.PiecewiseLinear
	if err := pl.Fit(sp.X, sp.Y); err != nil {
		return nil, err
	}
	out := make([]float64, len(axis))
	for i, x := range axis {
		out[i] = pl.Predict(x)
	}
	return out, nil
}

// Predict runs the model on already loaded spectra.
func (e *Engine) Predict(features [][]float64) ([]Prediction, error) {
	x, err := format.Spectra(features)
	if err != nil {
		return nil, err
	}
	if _, width := e.head(); x.Shape()[2] != width {
		return nil, &SchemaMismatchError{Field: "spectral axis", Expected: width, Actual: x.Shape()[2]}
	}
	rows, err := e.run(x)
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(rows))
	for i, row := range rows {
		if e.task == arch.Regression {
			out[i].Value = row[0]
			continue
		}
		if out[i], err = e.decode(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) run(x *tensor.Dense) ([][]float64, error) {
	if q := e.bundle.Quantized; q != nil {
		res, err := q.Run(x)
		if err != nil {
			return nil, err
		}
		return res.Dequantize(), nil
	}
	y, err := e.bundle.Network.Predict(x)
	if err != nil {
		return nil, err
	}
	return format.Split(y)
}

// decode turns one probability row into a Prediction. The last slot is the
// overflow class; it can win or enter the roster but never decodes to a label.
func (e *Engine) decode(probs []float64) (Prediction, error) {
	r := e.bundle.Reductor
	best := floats.MaxIdx(probs)
	p := Prediction{Index: best, Probability: probs[best]}

	label := func(i int) ([]float64, error) {
		if i >= r.VocabularySize() {
			return nil, nil
		}
		return r.InverseTransform(i)
	}

	var err error
	if p.Label, err = label(best); err != nil {
		return p, err
	}
	p.Known = p.Label != nil

	for i, prob := range probs {
		if prob <= e.cfg.ReportThreshold {
			continue
		}
		c := Candidate{Index: i, Probability: prob}
		if c.Label, err = label(i); err != nil {
			return p, err
		}
		p.Roster = append(p.Roster, c)
	}
	sort.SliceStable(p.Roster, func(i, j int) bool {
		return p.Roster[i].Probability > p.Roster[j].Probability
	})
	return p, nil
}
