// Package config holds the run configuration shared by training, inference
// and batch prediction.
//
// A Config is built once per process: start from Default, optionally
// overlay a YAML file with Load, then pass the value to every component.
// Keys missing from the file keep their defaults.
//
// Example file:
//
//	regressor: false
//	epochs: 200
//	architecture:
//	  filters: [8, 16]
//	  kernel_sizes: [10, 5]
//	  pool_sizes: [4, 2]
//	  conv_dropout: [0.1, 0.1]
//	  hidden: [40, 70]
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/logging"
)

// Input layouts accepted by the inference engine.
const (
	LayoutTable = "table" // Axis row followed by data rows
	LayoutXY    = "xy"    // Two columns: position and intensity
)

// Config is the complete run configuration.
type Config struct {
	Regressor       bool        `yaml:"regressor"`
	Normalize       bool        `yaml:"normalize"`
	Architecture    arch.Config `yaml:"architecture"`
	Epochs          int         `yaml:"epochs"`
	CVSplit         float64     `yaml:"cv_split"`
	FullSizeBatch   bool        `yaml:"full_size_batch"`
	BatchSize       int         `yaml:"batch_size"`
	NumLabels       int         `yaml:"num_labels"`
	Seed            int64       `yaml:"seed"`
	ShowValidPred   bool        `yaml:"show_valid_pred"`
	Quantize        bool        `yaml:"quantize"`
	UseQuantized    bool        `yaml:"use_quantized"`
	ReportThreshold float64     `yaml:"report_threshold"`
	ModelDir        string      `yaml:"model_dir"`
	InputLayout     string      `yaml:"input_layout"`
	LogLevel        string      `yaml:"log_level"`
	BatchPattern    string      `yaml:"batch_pattern"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Architecture:    arch.DefaultConfig(),
		Epochs:          100,
		CVSplit:         0.01,
		BatchSize:       64,
		NumLabels:       1,
		Seed:            1,
		Quantize:        true,
		ReportThreshold: 0.01,
		ModelDir:        ".",
		InputLayout:     LayoutTable,
		LogLevel:        "info",
		BatchPattern:    "*.txt",
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	//nolint:gosec // G304: configuration path is chosen by the operator
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Task returns the training objective selected by Regressor.
func (c Config) Task() arch.Task {
	if c.Regressor {
		return arch.Regression
	}
	return arch.Classification
}

// Validate checks every field.
func (c Config) Validate() error {
	if err := c.Architecture.Validate(); err != nil {
		return err
	}
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("config: epochs must be positive, got %d", c.Epochs)
	case c.CVSplit < 0 || c.CVSplit >= 1:
		return fmt.Errorf("config: cv_split %v outside [0, 1)", c.CVSplit)
	case c.BatchSize <= 0:
		return fmt.Errorf("config: batch_size must be positive, got %d", c.BatchSize)
	case c.NumLabels <= 0:
		return fmt.Errorf("config: num_labels must be positive, got %d", c.NumLabels)
	case c.ReportThreshold < 0 || c.ReportThreshold > 1:
		return fmt.Errorf("config: report_threshold %v outside [0, 1]", c.ReportThreshold)
	case c.ModelDir == "":
		return fmt.Errorf("config: model_dir is empty")
	case c.InputLayout != LayoutTable && c.InputLayout != LayoutXY:
		return fmt.Errorf("config: input_layout %q, expected %q or %q", c.InputLayout, LayoutTable, LayoutXY)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := filepath.Match(c.BatchPattern, "probe"); err != nil || c.BatchPattern == "" {
		return fmt.Errorf("config: invalid batch_pattern %q", c.BatchPattern)
	}
	return nil
}
