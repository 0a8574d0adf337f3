// Package optim implements the parameter update rules used in training.
package optim

// Optimizer updates parameters from their accumulated gradients.
//
// Typical loop:
//
//	net.ZeroGrad()
//	... forward, loss, backward ...
//	opt.Step()
type Optimizer interface {
	// Step applies one update using the current gradients.
	Step()

	// ZeroGrad clears the gradients of every managed parameter.
	ZeroGrad()

	// LR returns the learning rate the next Step will use.
	LR() float64
}
