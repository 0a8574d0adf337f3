package nn

import (
	"math"
	"math/rand"
)

// Xavier returns n values drawn from the Glorot uniform distribution
// U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))).
//
// Parameters:
//   - fanIn: Number of input units
//   - fanOut: Number of output units
//   - n: Number of values to draw
//   - rng: Seeded source, so that initialization is reproducible
func Xavier(fanIn, fanOut, n int, rng *rand.Rand) []float64 {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	out := make([]float64, n)
	for i := range out {
		//nolint:gosec // weight initialization is not security-critical
		out[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return out
}

// Zeros returns n zeros. Biases start here.
func Zeros(n int) []float64 {
	return make([]float64, n)
}
