package serialization

import (
	"encoding/json"
	"time"
)

// Format constants.
const (
	MagicBytes      = "SPCN"
	FormatVersion   = 1    // Fixed header with SHA-256 checksum
	HeaderAlignment = 64   // Align tensor data to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// DTypeFloat64 is the only tensor data type written by this package.
const DTypeFloat64 = "float64"

// Flags for the .born format.
const (
	FlagHasMetadata     uint32 = 1 << 0 // bit 0: custom metadata included
	FlagHasArchitecture uint32 = 1 << 1 // bit 1: architecture plan included
	FlagHasTraining     uint32 = 1 << 2 // bit 2: training state included
)

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion int               `json:"format_version"`         // Version of the format
	ModelType     string            `json:"model_type"`             // "classifier" or "regressor"
	CreatedAt     time.Time         `json:"created_at"`             // When the file was created
	Tensors       []TensorMeta      `json:"tensors"`                // Tensor metadata
	Metadata      map[string]string `json:"metadata"`               // Custom metadata
	Architecture  json.RawMessage   `json:"architecture,omitempty"` // Serialized architecture
	Training      *TrainingMeta     `json:"training,omitempty"`     // Training state (optional)
}

// TrainingMeta records how the stored weights were obtained.
type TrainingMeta struct {
	Epochs       int     `json:"epochs"`        // Completed epochs
	Steps        int     `json:"steps"`         // Optimizer steps
	Loss         float64 `json:"loss"`          // Final training loss
	Optimizer    string  `json:"optimizer"`     // Optimizer name
	LearningRate float64 `json:"learning_rate"` // Initial learning rate
	Decay        float64 `json:"decay"`         // Learning rate decay
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "conv_0.weight")
	DType  string `json:"dtype"`  // Data type, always "float64"
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

// elements returns the number of values described by the shape.
func (m TensorMeta) elements() int64 {
	n := int64(1)
	for _, d := range m.Shape {
		n *= int64(d)
	}
	return n
}
