package quant

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gorgonia.org/tensor"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/nn"
)

// Param is one stored network parameter. Weights carry int8 codes and a
// scale; biases carry their float64 values.
type Param struct {
	Name   string
	Shape  []int
	Codes  []int8
	Scale  float64
	Values []float64
}

// Quantized reports whether the parameter is stored as int8.
func (p Param) Quantized() bool {
	return p.Codes != nil
}

// Real returns the parameter in real units.
func (p Param) Real() []float64 {
	if !p.Quantized() {
		return append([]float64(nil), p.Values...)
	}
	out := make([]float64, len(p.Codes))
	for i, c := range p.Codes {
		out[i] = float64(c) * p.Scale
	}
	return out
}

// Artifact is a compressed network.
type Artifact struct {
	Head        arch.Head
	InputWidth  int
	Specs       []arch.LayerSpec
	Input       QParams
	Params      []Param
	Activations []QParams // One per layer, in layer order

	net *nn.Sequential
}

// Output is the raw result of Run.
type Output struct {
	Codes  [][]uint8
	Params QParams
}

// Dequantize rescales the codes to real units.
func (o *Output) Dequantize() [][]float64 {
	out := make([][]float64, len(o.Codes))
	for i, row := range o.Codes {
		out[i] = make([]float64, len(row))
		for j, c := range row {
			out[i][j] = o.Params.Dequantize(c)
		}
	}
	return out
}

// Compress quantizes net. representative is a batch of training spectra
// used to calibrate the activation ranges; it should cover the input
// distribution the artifact will see.
func Compress(net *arch.Network, representative *tensor.Dense) (*Artifact, error) {
	if err := net.CheckInput(representative); err != nil {
		return nil, fmt.Errorf("quant: representative batch: %w", err)
	}

	a := &Artifact{
		Head:       net.Head,
		InputWidth: net.InputWidth,
		Specs:      append([]arch.LayerSpec(nil), net.Specs...),
		Input:      Calibrate(minMax(values(representative))),
	}

	for _, p := range net.Net.Parameters() {
		param := Param{Name: p.Name(), Shape: p.Shape()}
		if strings.HasSuffix(p.Name(), ".weight") {
			param.Codes, param.Scale = quantizeSymmetric(p.Value())
		} else {
			param.Values = append([]float64(nil), p.Value()...)
		}
		a.Params = append(a.Params, param)
	}

	last := net.Net.Len() - 1
	a.Activations = make([]QParams, net.Net.Len())
	_, err := net.Net.Trace(representative, func(i int, l nn.Layer, out *tensor.Dense) (*tensor.Dense, error) {
		if i == last && net.Head.Task == arch.Classification {
			a.Activations[i] = SoftmaxParams
		} else {
			a.Activations[i] = Calibrate(minMax(values(out)))
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("quant: calibrate: %w", err)
	}
	return a, nil
}

// OutputParams returns the quantization parameters of the final layer.
func (a *Artifact) OutputParams() QParams {
	return a.Activations[len(a.Activations)-1]
}

// Run executes the artifact on a (n, 1, InputWidth, 1) batch.
func (a *Artifact) Run(x *tensor.Dense) (*Output, error) {
	s := x.Shape()
	if len(s) != 4 || s[1] != 1 || s[2] != a.InputWidth || s[3] != 1 {
		return nil, fmt.Errorf("quant: expected input shape (n, 1, %d, 1), got %v", a.InputWidth, s)
	}
	net, err := a.network()
	if err != nil {
		return nil, err
	}

	in := values(x)
	grid := make([]float64, len(in))
	for i, v := range in {
		grid[i] = a.Input.Round(v)
	}
	xq := tensor.New(tensor.WithShape(s.Clone()...), tensor.WithBacking(grid))

	var codes []uint8
	last := net.Len() - 1
	out, err := net.Trace(xq, func(i int, _ nn.Layer, out *tensor.Dense) (*tensor.Dense, error) {
		q := a.Activations[i]
		v := values(out)
		r := make([]float64, len(v))
		if i == last {
			codes = make([]uint8, len(v))
		}
		for j, val := range v {
			c := q.Quantize(val)
			r[j] = q.Dequantize(c)
			if i == last {
				codes[j] = c
			}
		}
		return tensor.New(tensor.WithShape(out.Shape().Clone()...), tensor.WithBacking(r)), nil
	})
	if err != nil {
		return nil, fmt.Errorf("quant: run: %w", err)
	}

	rows, width := out.Shape()[0], a.Head.Width
	result := &Output{Codes: make([][]uint8, rows), Params: a.OutputParams()}
	for r := range result.Codes {
		result.Codes[r] = codes[r*width : (r+1)*width]
	}
	return result, nil
}

// network builds the layer stack once and loads the dequantized weights.
func (a *Artifact) network() (*nn.Sequential, error) {
	if a.net != nil {
		return a.net, nil
	}
	if len(a.Activations) != len(a.Specs) {
		return nil, fmt.Errorf("quant: %d activation ranges for %d layers", len(a.Activations), len(a.Specs))
	}
	// Weights are overwritten below.
	net, err := arch.Build(a.Specs, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, err
	}
	state := make(map[string]*tensor.Dense, len(a.Params))
	for _, p := range a.Params {
		state[p.Name] = tensor.New(tensor.WithShape(p.Shape...), tensor.WithBacking(p.Real()))
	}
	if err := net.LoadStateDict(state); err != nil {
		return nil, fmt.Errorf("quant: %w", err)
	}
	a.net = net
	return net, nil
}

func minMax(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func values(t *tensor.Dense) []float64 {
	switch v := t.Data().(type) {
	case []float64:
		return v
	case float64:
		return []float64{v}
	default:
		panic(fmt.Sprintf("quant: expected float64 tensor, got %T", v))
	}
}
