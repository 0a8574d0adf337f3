// Package batch predicts every matching file in a directory and collects
// the results into a summary table.
//
// Files are processed one at a time in lexical order. A file that cannot be
// parsed, or whose spectra do not fit the model, is skipped with a warning;
// any other failure stops the run and the rows predicted so far are
// returned with the error.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/dataset"
	"github.com/born-ml/spectra/internal/infer"
	"github.com/born-ml/spectra/internal/logging"
)

// Title is the first cell of every summary table.
const Title = "SpectraCNN"

// SummaryName is the file name a summary table for task is saved under.
// Run never predicts a file with this name.
func SummaryName(task arch.Task) string {
	return fmt.Sprintf("summary_%s_CNN.csv", task)
}

// Predictor is the part of infer.Engine the aggregator needs.
type Predictor interface {
	Task() arch.Task
	PredictFile(path string) ([]infer.Prediction, error)
}

// Row is one predicted spectrum.
type Row struct {
	File       string
	Prediction infer.Prediction
}

// Skipped records a file left out of the table.
type Skipped struct {
	File string
	Err  error
}

// Table is the result of a batch run.
type Table struct {
	Task    arch.Task
	Rows    []Row
	Skipped []Skipped
}

// Header returns the two fixed header rows.
func (t *Table) Header() [][]string {
	if t.Task == arch.Regression {
		return [][]string{
			{Title, "Regressor", ""},
			{"File name", "Prediction", ""},
		}
	}
	return [][]string{
		{Title, "Classifier", ""},
		{"File name", "Predicted Class", "Probability"},
	}
}

// Records returns the header rows followed by one record per row.
// Probabilities are percentages rounded to two decimals. A spectrum that
// fell into the overflow slot has an empty class cell.
func (t *Table) Records() [][]string {
	out := t.Header()
	for _, r := range t.Rows {
		p := r.Prediction
		if t.Task == arch.Regression {
			out = append(out, []string{r.File, formatFloat(p.Value), ""})
			continue
		}
		class := ""
		if p.Known {
			class = formatLabel(p.Label)
		}
		out = append(out, []string{r.File, class, strconv.FormatFloat(100*p.Probability, 'f', 2, 64)})
	}
	return out
}

// WriteCSV writes Records to w.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("batch: write summary: %w", err)
	}
	return nil
}

// Aggregator runs a Predictor over a directory.
type Aggregator struct {
	predictor Predictor
	pattern   string
	logger    *slog.Logger
}

// New returns an Aggregator that predicts files matching pattern.
func New(p Predictor, pattern string, logger *slog.Logger) *Aggregator {
	return &Aggregator{predictor: p, pattern: pattern, logger: logger}
}

// Run predicts every matching file in dir.
func (a *Aggregator) Run(dir string) (*Table, error) {
	files, err := filepath.Glob(filepath.Join(dir, a.pattern))
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	sort.Strings(files)

	t := &Table{Task: a.predictor.Task()}
	summary := SummaryName(t.Task)
	for _, file := range files {
		if filepath.Base(file) == summary {
			continue
		}
		preds, err := a.predictor.PredictFile(file)
		if err != nil {
			if !skippable(err) {
				return t, fmt.Errorf("batch: %s: %w", file, err)
			}
			a.logger.Warn("skipping file", logging.FileKey, file, logging.ErrorKey, err)
			t.Skipped = append(t.Skipped, Skipped{File: file, Err: err})
			continue
		}
		for _, p := range preds {
			t.Rows = append(t.Rows, Row{File: file, Prediction: p})
		}
	}
	a.logger.Info("batch complete",
		logging.OperationKey, "batch",
		logging.DirKey, dir,
		logging.SamplesKey, len(t.Rows),
		logging.SkippedKey, len(t.Skipped),
	)
	return t, nil
}

func skippable(err error) bool {
	var fe *dataset.FormatError
	var se *infer.SchemaMismatchError
	return errors.As(err, &fe) || errors.As(err, &se)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatLabel(v []float64) string {
	if len(v) == 1 {
		return formatFloat(v[0])
	}
	s := ""
	for i, x := range v {
		if i > 0 {
			s += " "
		}
		s += formatFloat(x)
	}
	return s
}
