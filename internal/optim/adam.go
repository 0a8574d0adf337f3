package optim

import (
	"math"

	"github.com/born-ml/spectra/internal/nn"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer with
// inverse time decay of the learning rate.
//
// Update rule at step t (1-based):
//
//	lr_t  = lr / (1 + decay * (t-1))                   // Time decay
//	m_t   = beta1 * m_{t-1} + (1-beta1) * gradient     // First moment
//	v_t   = beta2 * v_{t-1} + (1-beta2) * gradient²    // Second moment
//	m_hat = m_t / (1 - beta1^t)                        // Bias correction
//	v_hat = v_t / (1 - beta2^t)                        // Bias correction
//	param = param - lr_t * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
//
// Example:
//
//	opt := optim.NewAdam(net.Parameters(), optim.AdamConfig{LR: 0.001, Decay: 1e-4})
//	for step := range steps {
//	    opt.ZeroGrad()
//	    ... forward, backward ...
//	    opt.Step()
//	}
type Adam struct {
	params []*nn.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	decay  float64
	t      int // Completed steps
	m      map[*nn.Parameter][]float64
	v      map[*nn.Parameter][]float64
}

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Coefficients for the running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-7)
	Decay float64    // Inverse time decay per step (default: 0, no decay)
}

// NewAdam creates a new Adam optimizer.
//
// Zero fields of config take their defaults:
//   - LR: 0.001
//   - Beta1: 0.9
//   - Beta2: 0.999
//   - Eps: 1e-7
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-7
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		decay:  config.Decay,
		m:      make(map[*nn.Parameter][]float64),
		v:      make(map[*nn.Parameter][]float64),
	}
}

// LR returns the decayed learning rate of the next step.
func (a *Adam) LR() float64 {
	return a.lr / (1 + a.decay*float64(a.t))
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int {
	return a.t
}

// Step applies one Adam update to every parameter.
func (a *Adam) Step() {
	lr := a.LR()
	a.t++

	biasCorrection1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for _, param := range a.params {
		m, ok := a.m[param]
		if !ok {
			m = make([]float64, param.Size())
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = make([]float64, param.Size())
			a.v[param] = v
		}

		value := param.Value()
		for i, g := range param.Grad() {
			m[i] = a.beta1*m[i] + (1.0-a.beta1)*g
			v[i] = a.beta2*v[i] + (1.0-a.beta2)*g*g

			mHat := m[i] / biasCorrection1
			vHat := v[i] / biasCorrection2
			value[i] -= lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}
