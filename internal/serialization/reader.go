package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gorgonia.org/tensor"
)

// ReaderOptions configures Read.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation
	ValidationLevel        ValidationLevel // Validation strictness level
}

// File is a decoded .born file.
type File struct {
	header  Header
	flags   uint32
	tensors map[string]*tensor.Dense
}

// ReadFile reads path with strict validation.
func ReadFile(path string) (*File, error) {
	//nolint:gosec // G304: model path is chosen by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Read(f, ReaderOptions{ValidationLevel: ValidationStrict})
}

// Read decodes a .born stream.
func Read(r io.Reader, opts ReaderOptions) (*File, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, fmt.Errorf("failed to read fixed header: %w", truncated(err))
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	version := binary.LittleEndian.Uint32(fixed[4:8])
	if version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}
	flags := binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [ChecksumSize]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}
	headerJSON := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", truncated(err))
	}
	var header Header
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	pos := int64(FixedHeaderSize) + int64(headerSize)
	padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
	if _, err := io.CopyN(io.Discard, r, padding); err != nil {
		return nil, fmt.Errorf("failed to skip padding: %w", truncated(err))
	}

	var data bytes.Buffer
	if _, err := io.CopyN(&data, r, int64(dataSize)); err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", truncated(err))
	}
	raw := data.Bytes()

	if !opts.SkipChecksumValidation {
		if err := verifyData(raw, stored); err != nil {
			return nil, err
		}
	}
	if err := ValidateHeader(&header, int64(len(raw)), opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	file := &File{header: header, flags: flags, tensors: make(map[string]*tensor.Dense, len(header.Tensors))}
	for _, meta := range header.Tensors {
		if meta.Offset+meta.Size > int64(len(raw)) {
			return nil, &ValidationError{Type: "out_of_bounds", Tensor: meta.Name, Details: "tensor extends beyond data section"}
		}
		chunk := raw[meta.Offset : meta.Offset+meta.Size]
		values := make([]float64, len(chunk)/8)
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk[i*8:]))
		}
		file.tensors[meta.Name] = tensor.New(tensor.WithShape(meta.Shape...), tensor.WithBacking(values))
	}
	return file, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// Header returns the decoded header.
func (f *File) Header() Header {
	return f.header
}

// Flags returns the flag word of the fixed header.
func (f *File) Flags() uint32 {
	return f.flags
}

// Metadata returns the custom metadata map.
func (f *File) Metadata() map[string]string {
	return f.header.Metadata
}

// TensorNames returns the stored tensor names in file order.
func (f *File) TensorNames() []string {
	names := make([]string, len(f.header.Tensors))
	for i, meta := range f.header.Tensors {
		names[i] = meta.Name
	}
	return names
}

// Tensor returns the named tensor.
func (f *File) Tensor(name string) (*tensor.Dense, error) {
	t, ok := f.tensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTensorNotFound, name)
	}
	return t, nil
}

// StateDict returns every tensor keyed by name.
func (f *File) StateDict() map[string]*tensor.Dense {
	out := make(map[string]*tensor.Dense, len(f.tensors))
	for name, t := range f.tensors {
		out[name] = t
	}
	return out
}
