// Package format turns spectra into the 4-D tensors consumed by the
// convolutional stage and back.
//
// A feature matrix of shape (samples, length) becomes a tensor of shape
// (samples, 1, length, 1): each spectrum is an image of unit height and a
// single channel, so a 1×k kernel slides along the spectral axis only.
package format

import (
	"fmt"

	"gorgonia.org/tensor"
)

// Spectra formats a feature matrix as a (n, 1, m, 1) float64 tensor.
func Spectra(features [][]float64) (*tensor.Dense, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("format: no spectra")
	}
	m := len(features[0])
	if m == 0 {
		return nil, fmt.Errorf("format: spectra are empty")
	}
	data := make([]float64, 0, len(features)*m)
	for i, row := range features {
		if len(row) != m {
			return nil, fmt.Errorf("format: spectrum %d has %d points, expected %d", i, len(row), m)
		}
		data = append(data, row...)
	}
	return tensor.New(tensor.WithShape(len(features), 1, m, 1), tensor.WithBacking(data)), nil
}

// Matrix reverses Spectra, returning a fresh (n, m) matrix.
func Matrix(t *tensor.Dense) ([][]float64, error) {
	shape := t.Shape()
	if len(shape) != 4 || shape[1] != 1 || shape[3] != 1 {
		return nil, fmt.Errorf("format: expected shape (n, 1, m, 1), got %v", shape)
	}
	n, m := shape[0], shape[2]
	data := Values(t)
	out := make([][]float64, n)
	for i := range out {
		out[i] = append([]float64(nil), data[i*m:(i+1)*m]...)
	}
	return out, nil
}

// Rows gathers the given samples along the first axis into a new tensor.
func Rows(t *tensor.Dense, idx []int) (*tensor.Dense, error) {
	shape := t.Shape()
	if len(shape) == 0 {
		return nil, fmt.Errorf("format: cannot select rows of a scalar")
	}
	stride := 1
	for _, d := range shape[1:] {
		stride *= d
	}
	data := Values(t)
	out := make([]float64, 0, len(idx)*stride)
	for _, i := range idx {
		if i < 0 || i >= shape[0] {
			return nil, fmt.Errorf("format: row %d out of range [0, %d)", i, shape[0])
		}
		out = append(out, data[i*stride:(i+1)*stride]...)
	}
	dims := append([]int{len(idx)}, shape[1:]...)
	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(out)), nil
}

// FromRows builds a (len(rows), width) tensor from equally sized rows.
func FromRows(rows [][]float64) (*tensor.Dense, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("format: no rows")
	}
	width := len(rows[0])
	data := make([]float64, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("format: row %d has %d values, expected %d", i, len(row), width)
		}
		data = append(data, row...)
	}
	return tensor.New(tensor.WithShape(len(rows), width), tensor.WithBacking(data)), nil
}

// Values returns the float64 backing of t in row-major order.
//
// Tensors whose shape is all ones may report a scalar from Data; those are
// returned as a one element slice that does not alias t.
func Values(t *tensor.Dense) []float64 {
	switch v := t.Data().(type) {
	case []float64:
		return v
	case float64:
		return []float64{v}
	default:
		panic(fmt.Sprintf("format: expected float64 tensor, got %T", v))
	}
}

// Split returns the rows of a 2-D tensor as fresh slices.
func Split(t *tensor.Dense) ([][]float64, error) {
	shape := t.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("format: expected 2-D tensor, got shape %v", shape)
	}
	n, width := shape[0], shape[1]
	data := Values(t)
	out := make([][]float64, n)
	for i := range out {
		out[i] = append([]float64(nil), data[i*width:(i+1)*width]...)
	}
	return out, nil
}
