package serialization

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"gorgonia.org/tensor"
)

// Write encodes a state dictionary and header to w.
//
// Tensors are written in name order so that identical weights always give
// identical data sections. The Tensors, FormatVersion and (when zero)
// CreatedAt fields of header are filled in by Write.
func Write(w io.Writer, stateDict map[string]*tensor.Dense, header Header) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	header.FormatVersion = FormatVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}
	header.Tensors = make([]TensorMeta, 0, len(names))

	var data []byte
	for _, name := range names {
		t := stateDict[name]
		if t.Dtype() != tensor.Float64 {
			return fmt.Errorf("tensor %q: dtype %v, expected float64", name, t.Dtype())
		}
		values, err := float64s(t)
		if err != nil {
			return fmt.Errorf("tensor %q: %w", name, err)
		}
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  DTypeFloat64,
			Shape:  []int(t.Shape().Clone()),
			Offset: int64(len(data)),
			Size:   int64(len(values) * 8),
		})
		for _, v := range values {
			data = binary.LittleEndian.AppendUint64(data, math.Float64bits(v))
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if len(headerJSON) > MaxHeaderSize {
		return ErrHeaderTooLarge
	}

	flags := uint32(0)
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if len(header.Architecture) > 0 {
		flags |= FlagHasArchitecture
	}
	if header.Training != nil {
		flags |= FlagHasTraining
	}

	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(fixed[8:12], flags)
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(len(data)))
	checksum := dataChecksum(data)
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	pos := int64(FixedHeaderSize + len(headerJSON))
	padding := (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment

	bw := bufio.NewWriter(w)
	for _, chunk := range [][]byte{fixed, headerJSON, make([]byte, padding), data} {
		if _, err := bw.Write(chunk); err != nil {
			return fmt.Errorf("failed to write model: %w", err)
		}
	}
	return bw.Flush()
}

// WriteFile writes a state dictionary to path, replacing any existing file.
func WriteFile(path string, stateDict map[string]*tensor.Dense, header Header) error {
	//nolint:gosec // G304: model path is chosen by the operator
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := Write(f, stateDict, header); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func float64s(t *tensor.Dense) ([]float64, error) {
	switch v := t.Data().(type) {
	case []float64:
		return v, nil
	case float64:
		return []float64{v}, nil
	default:
		return nil, fmt.Errorf("unexpected backing %T", v)
	}
}
