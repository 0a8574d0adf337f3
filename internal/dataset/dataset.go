// Package dataset reads the tabular spectral learning files.
//
// A learning file is a whitespace or tab delimited table:
//
//	row 0:    <numLabels placeholders> x_0 x_1 ... x_m-1   (the spectral axis)
//	row 1..N: <numLabels label values> y_0 y_1 ... y_m-1   (one spectrum each)
//
// Every row has the same width. Loading either returns the whole dataset or a
// *FormatError; a partially parsed table is never handed back.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// FormatError reports a learning or test file that cannot be used.
type FormatError struct {
	Path   string
	Line   int // 1-based line number, 0 when the error is not tied to a line
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	msg := e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("dataset %s: %s", e.Path, msg)
}

// Unwrap returns the underlying I/O or parse error.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Dataset is one parsed learning file.
type Dataset struct {
	Axis      []float64   // shared spectral axis, len == feature count
	Features  [][]float64 // one spectrum per sample
	Labels    [][]float64 // one label vector per sample; nil when the file carries none
	NumLabels int
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Features)
}

// Width returns the number of features per sample.
func (d *Dataset) Width() int {
	return len(d.Axis)
}

// Load parses a learning file whose data rows all carry numLabels label columns.
func Load(path string, numLabels int) (*Dataset, error) {
	rows, lines, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return fromRows(path, rows, lines, numLabels, false)
}

// LoadTest parses a file to predict on. Data rows may carry numLabels
// placeholder label columns or omit them entirely.
func LoadTest(path string, numLabels int) (*Dataset, error) {
	rows, lines, err := readTable(path)
	if err != nil {
		return nil, err
	}
	return fromRows(path, rows, lines, numLabels, true)
}

// Parse reads a learning table from r. name is only used in errors.
func Parse(r io.Reader, name string, numLabels int) (*Dataset, error) {
	rows, lines, err := parseTable(r, name)
	if err != nil {
		return nil, err
	}
	return fromRows(name, rows, lines, numLabels, false)
}

func fromRows(path string, rows [][]float64, lines []int, numLabels int, tolerant bool) (*Dataset, error) {
	if numLabels < 1 {
		return nil, &FormatError{Path: path, Reason: fmt.Sprintf("invalid label count %d", numLabels)}
	}
	if len(rows) < 2 {
		return nil, &FormatError{Path: path, Reason: "no samples: need an axis row and at least one data row"}
	}

	header := rows[0]
	if len(header) <= numLabels {
		return nil, &FormatError{
			Path:   path,
			Line:   lines[0],
			Reason: fmt.Sprintf("axis row has %d columns, need more than %d label columns", len(header), numLabels),
		}
	}

	width := len(header) - numLabels
	ds := &Dataset{
		Axis:      append([]float64(nil), header[numLabels:]...),
		Features:  make([][]float64, 0, len(rows)-1),
		NumLabels: numLabels,
	}
	withLabels := make([][]float64, 0, len(rows)-1)

	for i, row := range rows[1:] {
		switch {
		case len(row) == len(header):
			withLabels = append(withLabels, append([]float64(nil), row[:numLabels]...))
			ds.Features = append(ds.Features, append([]float64(nil), row[numLabels:]...))
		case tolerant && len(row) == width:
			ds.Features = append(ds.Features, append([]float64(nil), row...))
		default:
			return nil, &FormatError{
				Path:   path,
				Line:   lines[i+1],
				Reason: fmt.Sprintf("row has %d columns, axis row has %d", len(row), len(header)),
			}
		}
	}

	switch len(withLabels) {
	case len(ds.Features):
		ds.Labels = withLabels
	case 0:
		// labels absent from every row
	default:
		return nil, &FormatError{Path: path, Reason: "rows mix present and absent label columns"}
	}
	return ds, nil
}

func readTable(path string) ([][]float64, []int, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the user on purpose
	if err != nil {
		return nil, nil, &FormatError{Path: path, Reason: "cannot open", Err: err}
	}
	defer func() { _ = f.Close() }()
	return parseTable(f, path)
}

// parseTable splits r into numeric rows, remembering the source line of each.
func parseTable(r io.Reader, path string) ([][]float64, []int, error) {
	var (
		rows  [][]float64
		lines []int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for j, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, nil, &FormatError{
					Path:   path,
					Line:   line,
					Reason: fmt.Sprintf("column %d is not a number", j+1),
					Err:    err,
				}
			}
			row[j] = v
		}
		rows = append(rows, row)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, &FormatError{Path: path, Reason: "read failed", Err: err}
	}
	return rows, lines, nil
}

// Write serializes ds in the learning-file layout.
func Write(w io.Writer, ds *Dataset) error {
	if ds.Labels != nil && len(ds.Labels) != len(ds.Features) {
		return errors.New("dataset: labels and features differ in length")
	}
	bw := bufio.NewWriter(w)

	header := make([]float64, ds.NumLabels, ds.NumLabels+len(ds.Axis))
	header = append(header, ds.Axis...)
	writeRow(bw, header)

	for i, features := range ds.Features {
		row := make([]float64, 0, ds.NumLabels+len(features))
		if ds.Labels != nil {
			row = append(row, ds.Labels[i]...)
		} else {
			row = append(row, make([]float64, ds.NumLabels)...)
		}
		writeRow(bw, append(row, features...))
	}
	return bw.Flush()
}

func writeRow(w *bufio.Writer, row []float64) {
	for i, v := range row {
		if i > 0 {
			_ = w.WriteByte('\t')
		}
		_, _ = w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	_ = w.WriteByte('\n')
}

// Spectrum is a single two-column (x, y) measurement.
type Spectrum struct {
	X []float64
	Y []float64
}

// LoadSpectrum parses a two-column "x y" file and returns it sorted by x.
func LoadSpectrum(path string) (*Spectrum, error) {
	rows, lines, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &FormatError{Path: path, Reason: "spectrum needs at least two points"}
	}
	sp := &Spectrum{X: make([]float64, len(rows)), Y: make([]float64, len(rows))}
	for i, row := range rows {
		if len(row) != 2 {
			return nil, &FormatError{
				Path:   path,
				Line:   lines[i],
				Reason: fmt.Sprintf("expected 2 columns, got %d", len(row)),
			}
		}
		sp.X[i], sp.Y[i] = row[0], row[1]
	}
	sort.Sort(byX{sp})
	for i := 1; i < len(sp.X); i++ {
		if sp.X[i] == sp.X[i-1] {
			return nil, &FormatError{Path: path, Reason: fmt.Sprintf("duplicate x value %g", sp.X[i])}
		}
	}
	return sp, nil
}

type byX struct{ *Spectrum }

func (s byX) Len() int           { return len(s.X) }
func (s byX) Less(i, j int) bool { return s.X[i] < s.X[j] }
func (s byX) Swap(i, j int) {
	s.X[i], s.X[j] = s.X[j], s.X[i]
	s.Y[i], s.Y[j] = s.Y[j], s.Y[i]
}

// Normalize returns a copy of row scaled so its maximum is 1.
// A row whose maximum is not positive is returned unchanged.
func Normalize(row []float64) []float64 {
	out := append([]float64(nil), row...)
	maxVal := 0.0
	for _, v := range out {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal <= 0 {
		return out
	}
	for i := range out {
		out[i] /= maxVal
	}
	return out
}
