// Package store lays out the artifacts of a trained model in a directory
// and reads them back.
//
// For a task T ("classifier" or "regressor") a model directory holds:
//
//	model_T_CNN.born           network weights and architecture
//	model_T_CNN_edge.qnt       quantized artifact (optional)
//	model_le.json              label vocabulary (classification only)
//	model_spectral_range.json  spectral axis of the training data
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"github.com/born-ml/spectra/internal/arch"
	"github.com/born-ml/spectra/internal/labels"
	"github.com/born-ml/spectra/internal/quant"
	"github.com/born-ml/spectra/internal/serialization"
)

// Store resolves artifact paths for one task inside Dir.
type Store struct {
	Dir  string
	Task arch.Task
}

// New returns a Store rooted at dir.
func New(dir string, task arch.Task) *Store {
	return &Store{Dir: dir, Task: task}
}

// ModelPath is the full-precision network file.
func (s *Store) ModelPath() string {
	return filepath.Join(s.Dir, fmt.Sprintf("model_%s_CNN.born", s.Task))
}

// QuantizedPath is the quantized artifact file.
func (s *Store) QuantizedPath() string {
	return filepath.Join(s.Dir, fmt.Sprintf("model_%s_CNN_edge.qnt", s.Task))
}

// ReductorPath is the label vocabulary file.
func (s *Store) ReductorPath() string {
	return filepath.Join(s.Dir, "model_le.json")
}

// AxisPath is the spectral axis file.
func (s *Store) AxisPath() string {
	return filepath.Join(s.Dir, "model_spectral_range.json")
}

// descriptor is what a network file needs besides its weights.
type descriptor struct {
	Config     arch.Config      `json:"config"`
	Head       arch.Head        `json:"head"`
	InputWidth int              `json:"input_width"`
	Layers     []arch.LayerSpec `json:"layers"`
}

// SaveNetwork writes the weights and architecture of net.
func (s *Store) SaveNetwork(net *arch.Network, training *serialization.TrainingMeta) error {
	if net.Head.Task != s.Task {
		return fmt.Errorf("store: saving a %s network into a %s store", net.Head.Task, s.Task)
	}
	desc, err := json.Marshal(descriptor{Config: net.Config, Head: net.Head, InputWidth: net.InputWidth, Layers: net.Specs})
	if err != nil {
		return fmt.Errorf("store: encode architecture: %w", err)
	}
	if err := s.mkdir(); err != nil {
		return err
	}
	header := serialization.Header{
		ModelType:    s.Task.String(),
		Architecture: desc,
		Training:     training,
		Metadata: map[string]string{
			"input_width":  strconv.Itoa(net.InputWidth),
			"output_width": strconv.Itoa(net.OutputWidth()),
		},
	}
	if err := serialization.WriteFile(s.ModelPath(), net.Net.StateDict(), header); err != nil {
		return fmt.Errorf("store: save network: %w", err)
	}
	return nil
}

// LoadNetwork rebuilds the network saved by SaveNetwork.
func (s *Store) LoadNetwork() (*arch.Network, error) {
	f, err := serialization.ReadFile(s.ModelPath())
	if err != nil {
		return nil, fmt.Errorf("store: load network: %w", err)
	}
	h := f.Header()
	if h.ModelType != s.Task.String() {
		return nil, fmt.Errorf("store: %s holds a %s model, expected %s", s.ModelPath(), h.ModelType, s.Task)
	}
	var desc descriptor
	if err := json.Unmarshal(h.Architecture, &desc); err != nil {
		return nil, fmt.Errorf("store: decode architecture: %w", err)
	}
	// Weights are replaced by the stored state.
	net, err := arch.Assemble(desc.Config, desc.InputWidth, desc.Head, rand.New(rand.NewSource(0)))
	if err != nil {
		return nil, fmt.Errorf("store: rebuild network: %w", err)
	}
	if len(net.Specs) != len(desc.Layers) {
		return nil, fmt.Errorf("store: stored plan has %d layers, rebuilt plan has %d", len(desc.Layers), len(net.Specs))
	}
	for i, l := range desc.Layers {
		if l.Kind != net.Specs[i].Kind || l.Name != net.Specs[i].Name {
			return nil, fmt.Errorf("store: layer %d is %s %q, rebuilt as %s %q", i, l.Kind, l.Name, net.Specs[i].Kind, net.Specs[i].Name)
		}
	}
	if err := net.Net.LoadStateDict(f.StateDict()); err != nil {
		return nil, fmt.Errorf("store: load weights: %w", err)
	}
	return net, nil
}

// SaveReductor writes the label vocabulary.
func (s *Store) SaveReductor(r *labels.Reductor) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode reductor: %w", err)
	}
	return s.write(s.ReductorPath(), data)
}

// LoadReductor reads the label vocabulary.
func (s *Store) LoadReductor() (*labels.Reductor, error) {
	data, err := os.ReadFile(s.ReductorPath())
	if err != nil {
		return nil, fmt.Errorf("store: load reductor: %w", err)
	}
	r := labels.NewReductor()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("store: %s: %w", s.ReductorPath(), err)
	}
	return r, nil
}

type axisFile struct {
	Axis []float64 `json:"axis"`
}

// SaveAxis writes the spectral axis of the training data.
func (s *Store) SaveAxis(axis []float64) error {
	data, err := json.Marshal(axisFile{Axis: axis})
	if err != nil {
		return fmt.Errorf("store: encode axis: %w", err)
	}
	return s.write(s.AxisPath(), data)
}

// LoadAxis reads the spectral axis.
func (s *Store) LoadAxis() ([]float64, error) {
	data, err := os.ReadFile(s.AxisPath())
	if err != nil {
		return nil, fmt.Errorf("store: load axis: %w", err)
	}
	var f axisFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("store: %s: %w", s.AxisPath(), err)
	}
	if len(f.Axis) == 0 {
		return nil, fmt.Errorf("store: %s: empty axis", s.AxisPath())
	}
	return f.Axis, nil
}

// SaveQuantized writes a quantized artifact.
func (s *Store) SaveQuantized(a *quant.Artifact) error {
	data, err := a.MarshalBinary()
	if err != nil {
		return fmt.Errorf("store: encode quantized model: %w", err)
	}
	return s.write(s.QuantizedPath(), data)
}

// LoadQuantized reads a quantized artifact.
func (s *Store) LoadQuantized() (*quant.Artifact, error) {
	data, err := os.ReadFile(s.QuantizedPath())
	if err != nil {
		return nil, fmt.Errorf("store: load quantized model: %w", err)
	}
	var a quant.Artifact
	if err := a.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("store: %s: %w", s.QuantizedPath(), err)
	}
	if a.Head.Task != s.Task {
		return nil, fmt.Errorf("store: %s holds a %s model, expected %s", s.QuantizedPath(), a.Head.Task, s.Task)
	}
	return &a, nil
}

// Bundle is everything inference needs. Exactly one of Network and
// Quantized is set; Reductor is nil for regression.
type Bundle struct {
	Network   *arch.Network
	Quantized *quant.Artifact
	Reductor  *labels.Reductor
	Axis      []float64
}

// Load reads a bundle. With quantized set the artifact replaces the
// full-precision network.
func (s *Store) Load(quantized bool) (*Bundle, error) {
	b := &Bundle{}
	var err error
	if quantized {
		b.Quantized, err = s.LoadQuantized()
	} else {
		b.Network, err = s.LoadNetwork()
	}
	if err != nil {
		return nil, err
	}
	if b.Axis, err = s.LoadAxis(); err != nil {
		return nil, err
	}
	if s.Task == arch.Classification {
		if b.Reductor, err = s.LoadReductor(); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Exists reports whether the full-precision model file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.ModelPath())
	return !errors.Is(err, os.ErrNotExist)
}

func (s *Store) mkdir() error {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return fmt.Errorf("store: create %s: %w", s.Dir, err)
	}
	return nil
}

func (s *Store) write(path string, data []byte) error {
	if err := s.mkdir(); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	return nil
}
