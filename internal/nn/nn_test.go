package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func randomDense(rng *rand.Rand, shape ...int) *tensor.Dense {
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float64, n)
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return newDense(data, shape...)
}

// projection is Σ out·r, a scalar whose gradient w.r.t. out is r.
func projection(t *testing.T, l Layer, x *tensor.Dense, r []float64) float64 {
	t.Helper()
	out, err := l.Forward(x, false)
	require.NoError(t, err)
	var sum float64
	for i, v := range values(out) {
		sum += v * r[i]
	}
	return sum
}

// checkGradients compares Backward against central differences for the
// input and every parameter of l.
func checkGradients(t *testing.T, l Layer, x *tensor.Dense) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))

	out, err := l.Forward(x, true)
	require.NoError(t, err)
	r := make([]float64, len(values(out)))
	for i := range r {
		r[i] = rng.Float64()*2 - 1
	}
	for _, p := range l.Parameters() {
		p.ZeroGrad()
	}
	dx, err := l.Backward(newDense(append([]float64(nil), r...), out.Shape().Clone()...))
	require.NoError(t, err)
	require.Equal(t, []int(x.Shape()), []int(dx.Shape()))

	const h = 1e-6
	in := values(x)
	analytic := values(dx)
	for i := range in {
		orig := in[i]
		in[i] = orig + h
		plus := projection(t, l, x, r)
		in[i] = orig - h
		minus := projection(t, l, x, r)
		in[i] = orig
		assert.InDelta(t, (plus-minus)/(2*h), analytic[i], 1e-5, "dx[%d]", i)
	}

	for _, p := range l.Parameters() {
		for i := range p.value {
			orig := p.value[i]
			p.value[i] = orig + h
			plus := projection(t, l, x, r)
			p.value[i] = orig - h
			minus := projection(t, l, x, r)
			p.value[i] = orig
			assert.InDelta(t, (plus-minus)/(2*h), p.grad[i], 1e-5, "%s[%d]", p.Name(), i)
		}
	}
}

func TestConv2D_Shape(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2D("conv_0", 2, 3, 4, rng)

	out, err := conv.Forward(randomDense(rng, 5, 1, 10, 2), false)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 1, 7, 3}, []int(out.Shape()))

	_, err = conv.Forward(randomDense(rng, 1, 1, 3, 2), false)
	assert.Error(t, err, "kernel wider than input")
	_, err = conv.Forward(randomDense(rng, 1, 1, 8, 1), false)
	assert.Error(t, err, "channel mismatch")
}

func TestConv2D_KnownValues(t *testing.T) {
	conv := NewConv2D("conv", 1, 1, 2, rand.New(rand.NewSource(1)))
	copy(conv.Weight().Value(), []float64{1, -1})
	conv.Bias().Value()[0] = 0.5

	out, err := conv.Forward(newDense([]float64{1, 3, 6}, 1, 1, 3, 1), false)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1.5, -2.5}, values(out))
}

func TestConv2D_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	checkGradients(t, NewConv2D("conv", 2, 3, 3, rng), randomDense(rng, 2, 1, 6, 2))
}

func TestMaxPool2D(t *testing.T) {
	pool := NewMaxPool2D("pool", 2)
	x := newDense([]float64{1, 5, 3, 2, 9, 0, 4}, 1, 1, 7, 1)

	out, err := pool.Forward(x, true)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3, 1}, []int(out.Shape()))
	assert.Equal(t, []float64{5, 3, 9}, values(out))

	dx, err := pool.Backward(newDense([]float64{1, 2, 3}, 1, 1, 3, 1))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 0, 3, 0, 0}, values(dx))

	_, err = NewMaxPool2D("pool", 8).Forward(x, false)
	assert.Error(t, err)
}

func TestDense_KnownValues(t *testing.T) {
	d := NewDense("dense", 2, 1, 0, rand.New(rand.NewSource(1)))
	copy(d.Weight().Value(), []float64{2, 3})
	d.Bias().Value()[0] = 1

	out, err := d.Forward(newDense([]float64{1, 1, 2, 0}, 2, 2), false)
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 5}, values(out))
}

func TestDense_Gradients(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	checkGradients(t, NewDense("dense", 4, 3, 0, rng), randomDense(rng, 3, 4))
}

func TestDense_L2(t *testing.T) {
	d := NewDense("dense", 1, 2, 0.5, rand.New(rand.NewSource(1)))
	copy(d.Weight().Value(), []float64{1, -2})
	assert.InDelta(t, 2.5, d.Penalty(), 1e-12)

	_, err := d.Forward(newDense([]float64{0, 0}, 2, 1), true)
	require.NoError(t, err)
	_, err = d.Backward(newDense([]float64{0, 0, 0, 0}, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -2}, d.Weight().Grad())
}

func TestReLU(t *testing.T) {
	r := NewReLU("relu")
	out, err := r.Forward(newDense([]float64{-1, 0, 2}, 1, 3), true)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 2}, values(out))

	dx, err := r.Backward(newDense([]float64{5, 5, 5}, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 5}, values(dx))
}

func TestSoftmax(t *testing.T) {
	s := NewSoftmax("softmax")
	out, err := s.Forward(newDense([]float64{1, 2, 3, 1000, 1000, 1000}, 2, 3), false)
	require.NoError(t, err)
	v := values(out)
	for r := 0; r < 2; r++ {
		var sum float64
		for _, p := range v[r*3 : (r+1)*3] {
			assert.False(t, math.IsNaN(p))
			sum += p
		}
		assert.InDelta(t, 1, sum, 1e-12)
	}
	assert.InDelta(t, 1.0/3, v[3], 1e-12)

	rng := rand.New(rand.NewSource(4))
	checkGradients(t, NewSoftmax("softmax"), randomDense(rng, 2, 4))
}

func TestDropout(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d := NewDropout("dropout", 0.5, rng)
	x := newDense(ones(1000), 10, 100)

	out, err := d.Forward(x, false)
	require.NoError(t, err)
	assert.Equal(t, values(x), values(out), "inference is the identity")

	out, err = d.Forward(x, true)
	require.NoError(t, err)
	zeros := 0
	for _, v := range values(out) {
		if v == 0 {
			zeros++
		} else {
			assert.Equal(t, 2.0, v)
		}
	}
	assert.InDelta(t, 500, zeros, 100)

	assert.Panics(t, func() { NewDropout("bad", 1, rng) })
}

func TestFlatten(t *testing.T) {
	f := NewFlatten("flatten")
	x := newDense([]float64{1, 2, 3, 4, 5, 6}, 2, 1, 3, 1)
	out, err := f.Forward(x, true)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, []int(out.Shape()))

	dx, err := f.Backward(out)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3, 1}, []int(dx.Shape()))
}

func TestBackwardWithoutForward(t *testing.T) {
	g := newDense([]float64{1}, 1, 1)
	rng := rand.New(rand.NewSource(1))
	for _, l := range []Layer{
		NewConv2D("c", 1, 1, 1, rng), NewMaxPool2D("p", 1), NewReLU("r"),
		NewDropout("d", 0, rng), NewFlatten("f"), NewDense("l", 1, 1, 0, rng), NewSoftmax("s"),
	} {
		_, err := l.Backward(g)
		assert.Error(t, err, l.String())
	}
}
