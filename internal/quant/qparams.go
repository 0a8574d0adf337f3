// Package quant compresses a trained network into an 8-bit artifact and
// executes it.
//
// Weights are quantized per tensor to symmetric int8; biases stay in
// float64. Every layer output is mapped onto an affine uint8 grid whose
// range is calibrated on a representative batch, and execution rounds each
// activation onto that grid before it feeds the next layer. The final
// output is returned as uint8 together with the parameters needed to
// rescale it.
package quant

import (
	"math"
)

// QParams is an affine mapping between real values and uint8 codes:
//
//	real = Scale * (code - ZeroPoint)
type QParams struct {
	Scale     float64
	ZeroPoint int32
}

// SoftmaxParams is the fixed output mapping of probability heads.
var SoftmaxParams = QParams{Scale: 1.0 / 255, ZeroPoint: 0}

// Calibrate returns parameters covering [lo, hi]. The range is widened to
// include zero so that zero is exactly representable.
func Calibrate(lo, hi float64) QParams {
	lo = math.Min(lo, 0)
	hi = math.Max(hi, 0)
	scale := (hi - lo) / 255
	if scale == 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return QParams{Scale: 1, ZeroPoint: 0}
	}
	zp := math.Round(-lo / scale)
	return QParams{Scale: scale, ZeroPoint: int32(math.Max(0, math.Min(255, zp)))}
}

// Quantize maps v to its nearest code, saturating at 0 and 255.
func (q QParams) Quantize(v float64) uint8 {
	c := math.Round(v/q.Scale) + float64(q.ZeroPoint)
	return uint8(math.Max(0, math.Min(255, c)))
}

// Dequantize maps a code back to real units.
func (q QParams) Dequantize(c uint8) float64 {
	return q.Scale * float64(int32(c)-q.ZeroPoint)
}

// Round snaps v onto the grid.
func (q QParams) Round(v float64) float64 {
	return q.Dequantize(q.Quantize(v))
}

// quantizeSymmetric maps values to int8 in [-127, 127] with a single scale.
func quantizeSymmetric(values []float64) ([]int8, float64) {
	var maxAbs float64
	for _, v := range values {
		maxAbs = math.Max(maxAbs, math.Abs(v))
	}
	scale := maxAbs / 127
	if scale == 0 {
		scale = 1
	}
	out := make([]int8, len(values))
	for i, v := range values {
		out[i] = int8(math.Max(-127, math.Min(127, math.Round(v/scale))))
	}
	return out, scale
}
