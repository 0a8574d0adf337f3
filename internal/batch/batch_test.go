package batch

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/dataset"
	"github.com/born-ml/spectra/internal/infer"
	"github.com/born-ml/spectra/internal/logging"
)

// stubPredictor parses files with the real loader and answers with a
// fixed prediction.
type stubPredictor struct {
	task  arch.Task
	width int
	fail  map[string]error
	pred  infer.Prediction
	seen  []string
}

func (s *stubPredictor) Task() arch.Task { return s.task }

func (s *stubPredictor) PredictFile(path string) ([]infer.Prediction, error) {
	s.seen = append(s.seen, filepath.Base(path))
	if err, ok := s.fail[filepath.Base(path)]; ok {
		return nil, err
	}
	ds, err := dataset.LoadTest(path, 1)
	if err != nil {
		return nil, err
	}
	if ds.Width() != s.width {
		return nil, &infer.SchemaMismatchError{Field: "spectral axis", Expected: s.width, Actual: ds.Width()}
	}
	p := s.pred
	p.File = path
	return []infer.Prediction{p}, nil
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

const goodTable = "0\t100\t110\t120\n0\t0.1\t0.5\t0.2\n"

func TestRun_SkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_good.txt", goodTable)
	writeFile(t, dir, "b_bad.txt", "0\t100\t110\t120\n0\t0.1\tnope\t0.2\n")

	p := &stubPredictor{
		task:  arch.Classification,
		width: 3,
		pred:  infer.Prediction{Index: 0, Label: []float64{2}, Known: true, Probability: 0.98761},
	}
	table, err := New(p, "*.txt", logging.Discard()).Run(dir)
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	assert.Equal(t, filepath.Join(dir, "a_good.txt"), table.Rows[0].File)
	require.Len(t, table.Skipped, 1)
	var fe *dataset.FormatError
	assert.True(t, errors.As(table.Skipped[0].Err, &fe))

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"SpectraCNN", "Classifier", ""}, records[0])
	assert.Equal(t, []string{"File name", "Predicted Class", "Probability"}, records[1])
	assert.Equal(t, []string{filepath.Join(dir, "a_good.txt"), "2.00", "98.76"}, records[2])
}

func TestRun_SkipsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", goodTable)
	writeFile(t, dir, "b.txt", "0\t100\t110\n0\t0.1\t0.5\n")

	p := &stubPredictor{task: arch.Regression, width: 3, pred: infer.Prediction{Value: 4.256}}
	table, err := New(p, "*.txt", logging.Discard()).Run(dir)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	require.Len(t, table.Skipped, 1)

	records := table.Records()
	assert.Equal(t, []string{"SpectraCNN", "Regressor", ""}, records[0])
	assert.Equal(t, []string{"File name", "Prediction", ""}, records[1])
	assert.Equal(t, "4.26", records[2][1])
	assert.Equal(t, "", records[2][2])
}

func TestRun_EscalatesOtherErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", goodTable)
	writeFile(t, dir, "b.txt", goodTable)
	writeFile(t, dir, "c.txt", goodTable)

	boom := errors.New("model exploded")
	p := &stubPredictor{task: arch.Classification, width: 3, fail: map[string]error{"b.txt": boom}}
	table, err := New(p, "*.txt", logging.Discard()).Run(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	require.NotNil(t, table)
	assert.Len(t, table.Rows, 1, "rows before the failure are kept")
	assert.Equal(t, []string{"a.txt", "b.txt"}, p.seen, "processing stops at the failing file")
}

func TestRun_PatternAndOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "c.txt", goodTable)
	writeFile(t, dir, "a.txt", goodTable)
	writeFile(t, dir, "notes.md", "ignored")

	p := &stubPredictor{task: arch.Classification, width: 3}
	table, err := New(p, "*.txt", logging.Discard()).Run(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "c.txt"}, p.seen)

	// overflow predictions have no class
	records := table.Records()
	require.Len(t, records, 4)
	assert.Equal(t, "", records[2][1])
}

func TestFormatLabel(t *testing.T) {
	assert.Equal(t, "3.50", formatLabel([]float64{3.5}))
	assert.Equal(t, "1.00 2.00", formatLabel([]float64{1, 2}))
}

func TestRun_IgnoresOwnSummary(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", goodTable)
	writeFile(t, dir, SummaryName(arch.Classification), "SpectraCNN,Classifier,\n")

	p := &stubPredictor{task: arch.Classification, width: 3}
	table, err := New(p, "*", logging.Discard()).Run(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, p.seen)
	assert.Len(t, table.Rows, 1)
	assert.Empty(t, table.Skipped)
}
