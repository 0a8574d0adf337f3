// Package arch turns an architecture configuration into a trainable
// convolutional network.
//
// Assembly happens in two steps. Plan walks the configuration and produces
// one declarative LayerSpec per layer, computing every intermediate shape
// and rejecting configurations whose kernels or pooling windows do not fit
// the spectral width that survives the previous layers. Build instantiates
// the planned layers. Assemble does both and attaches the loss, metric and
// optimizer the task calls for.
//
// Example:
//
//	cfg := arch.DefaultConfig()
//	net, err := arch.Assemble(cfg, 1024, arch.Head{Task: arch.Classification, Width: 4}, rng)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(net.Summary())
package arch

import (
	"fmt"
)

// Config describes the layer stack and its optimizer.
//
// Filters, KernelSizes, PoolSizes and ConvDropout are parallel sequences:
// entry i of each configures convolutional block i.
type Config struct {
	Filters      []int     `yaml:"filters" json:"filters"`
	KernelSizes  []int     `yaml:"kernel_sizes" json:"kernel_sizes"`
	PoolSizes    []int     `yaml:"pool_sizes" json:"pool_sizes"`
	ConvDropout  []float64 `yaml:"conv_dropout" json:"conv_dropout"`
	Hidden       []int     `yaml:"hidden" json:"hidden"`
	DenseDropout float64   `yaml:"dense_dropout" json:"dense_dropout"`
	LearningRate float64   `yaml:"learning_rate" json:"learning_rate"`
	LRDecay      float64   `yaml:"lr_decay" json:"lr_decay"`
	L2           float64   `yaml:"l2" json:"l2"`
}

// DefaultConfig returns a single convolutional block followed by two hidden
// dense layers.
func DefaultConfig() Config {
	return Config{
		Filters:      []int{1},
		KernelSizes:  []int{10},
		PoolSizes:    []int{20},
		ConvDropout:  []float64{0},
		Hidden:       []int{40, 70},
		DenseDropout: 0,
		LearningRate: 0.001,
		LRDecay:      1e-4,
		L2:           1e-4,
	}
}

// ConfigError reports an architecture configuration that cannot be built.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("arch: invalid %s: %s", e.Field, e.Reason)
}

// ConvBlocks returns the number of convolutional blocks.
func (c Config) ConvBlocks() int {
	return len(c.Filters)
}

// Validate checks the configuration for structural errors. Shape
// compatibility with a given input width is checked by Plan.
func (c Config) Validate() error {
	n := len(c.Filters)
	if n == 0 {
		return &ConfigError{Field: "filters", Reason: "at least one convolutional block is required"}
	}
	for _, seq := range []struct {
		field string
		n     int
	}{
		{"kernel_sizes", len(c.KernelSizes)},
		{"pool_sizes", len(c.PoolSizes)},
		{"conv_dropout", len(c.ConvDropout)},
	} {
		if seq.n != n {
			return &ConfigError{Field: seq.field, Reason: fmt.Sprintf("has %d entries, filters has %d", seq.n, n)}
		}
	}
	if err := positive("filters", c.Filters); err != nil {
		return err
	}
	if err := positive("kernel_sizes", c.KernelSizes); err != nil {
		return err
	}
	if err := positive("pool_sizes", c.PoolSizes); err != nil {
		return err
	}
	if err := positive("hidden", c.Hidden); err != nil {
		return err
	}
	for i, r := range c.ConvDropout {
		if r < 0 || r >= 1 {
			return &ConfigError{Field: "conv_dropout", Reason: fmt.Sprintf("entry %d is %v, expected [0, 1)", i, r)}
		}
	}
	if c.DenseDropout < 0 || c.DenseDropout >= 1 {
		return &ConfigError{Field: "dense_dropout", Reason: fmt.Sprintf("%v outside [0, 1)", c.DenseDropout)}
	}
	if c.LearningRate <= 0 {
		return &ConfigError{Field: "learning_rate", Reason: "must be positive"}
	}
	if c.LRDecay < 0 {
		return &ConfigError{Field: "lr_decay", Reason: "must not be negative"}
	}
	if c.L2 < 0 {
		return &ConfigError{Field: "l2", Reason: "must not be negative"}
	}
	return nil
}

func positive(field string, values []int) error {
	for i, v := range values {
		if v <= 0 {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("entry %d is %d, expected > 0", i, v)}
		}
	}
	return nil
}
