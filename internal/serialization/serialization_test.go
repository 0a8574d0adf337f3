package serialization

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func sampleState() map[string]*tensor.Dense {
	return map[string]*tensor.Dense{
		"conv_0.weight": tensor.New(tensor.WithShape(2, 3, 1), tensor.WithBacking([]float64{1, 2, 3, 4, 5, 6})),
		"conv_0.bias":   tensor.New(tensor.WithShape(2), tensor.WithBacking([]float64{-0.5, 0.25})),
		"output.bias":   tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{7})),
	}
}

func encode(t *testing.T, header Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(), header))
	return buf.Bytes()
}

func TestWriteRead_RoundTrip(t *testing.T) {
	arch := json.RawMessage(`{"layers":3}`)
	data := encode(t, Header{
		ModelType:    "classifier",
		Metadata:     map[string]string{"input_width": "12"},
		Architecture: arch,
		Training:     &TrainingMeta{Epochs: 3, Optimizer: "adam"},
	})

	f, err := Read(bytes.NewReader(data), ReaderOptions{})
	require.NoError(t, err)

	h := f.Header()
	assert.Equal(t, FormatVersion, h.FormatVersion)
	assert.Equal(t, "classifier", h.ModelType)
	assert.Equal(t, "12", f.Metadata()["input_width"])
	assert.JSONEq(t, string(arch), string(h.Architecture))
	assert.Equal(t, 3, h.Training.Epochs)
	assert.Equal(t, FlagHasMetadata|FlagHasArchitecture|FlagHasTraining, f.Flags())
	assert.Equal(t, []string{"conv_0.bias", "conv_0.weight", "output.bias"}, f.TensorNames())

	for name, want := range sampleState() {
		got, err := f.Tensor(name)
		require.NoError(t, err)
		assert.Equal(t, []int(want.Shape()), []int(got.Shape()), name)
		assert.Equal(t, want.Data(), got.Data(), name)
	}
	assert.Len(t, f.StateDict(), 3)

	_, err = f.Tensor("missing")
	assert.True(t, errors.Is(err, ErrTensorNotFound))
}

func TestWrite_DataAligned(t *testing.T) {
	data := encode(t, Header{ModelType: "regressor"})
	f, err := Read(bytes.NewReader(data), ReaderOptions{})
	require.NoError(t, err)

	var dataSize int64
	for _, m := range f.Header().Tensors {
		dataSize += m.Size
	}
	assert.Equal(t, int64(0), (int64(len(data))-dataSize)%HeaderAlignment)
}

func TestWrite_Deterministic(t *testing.T) {
	a := encode(t, Header{ModelType: "regressor"})
	b := encode(t, Header{ModelType: "regressor"})
	// Only created_at may differ; the data sections must be identical.
	assert.Equal(t, a[len(a)-72:], b[len(b)-72:])
	assert.Equal(t, a[ChecksumOffset:ChecksumOffset+ChecksumSize], b[ChecksumOffset:ChecksumOffset+ChecksumSize])
}

func TestRead_Corruption(t *testing.T) {
	good := encode(t, Header{ModelType: "regressor"})

	t.Run("magic", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		copy(bad, "BORN")
		_, err := Read(bytes.NewReader(bad), ReaderOptions{})
		assert.True(t, errors.Is(err, ErrInvalidMagic))
	})
	t.Run("version", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[4] = 9
		_, err := Read(bytes.NewReader(bad), ReaderOptions{})
		assert.True(t, errors.Is(err, ErrUnsupportedVersion))
	})
	t.Run("checksum", func(t *testing.T) {
		bad := append([]byte(nil), good...)
		bad[len(bad)-1] ^= 0xff
		_, err := Read(bytes.NewReader(bad), ReaderOptions{})
		assert.True(t, errors.Is(err, ErrChecksumMismatch))

		_, err = Read(bytes.NewReader(bad), ReaderOptions{SkipChecksumValidation: true})
		assert.NoError(t, err)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := Read(bytes.NewReader(good[:len(good)-4]), ReaderOptions{})
		assert.True(t, errors.Is(err, ErrTruncated))
		_, err = Read(bytes.NewReader(good[:10]), ReaderOptions{})
		assert.True(t, errors.Is(err, ErrTruncated))
	})
}

func TestWriteFile_ReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.born")
	require.NoError(t, WriteFile(path, sampleState(), Header{ModelType: "regressor"}))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "regressor", f.Header().ModelType)

	_, err = ReadFile(filepath.Join(t.TempDir(), "absent.born"))
	assert.Error(t, err)
}

func TestWrite_RejectsBadNames(t *testing.T) {
	var buf bytes.Buffer
	state := map[string]*tensor.Dense{"../escape": tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{1}))}
	err := Write(&buf, state, Header{})
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
}

func TestValidateHeader(t *testing.T) {
	meta := func(name string, offset, size int64) TensorMeta {
		return TensorMeta{Name: name, DType: DTypeFloat64, Shape: []int{int(size / 8)}, Offset: offset, Size: size}
	}
	tests := []struct {
		name    string
		tensors []TensorMeta
		kind    string
	}{
		{"overlap", []TensorMeta{meta("a", 0, 16), meta("b", 8, 16)}, "offset_overlap"},
		{"out of bounds", []TensorMeta{meta("a", 0, 16), meta("b", 16, 32)}, "out_of_bounds"},
		{"negative", []TensorMeta{{Name: "a", DType: DTypeFloat64, Offset: -8, Size: 8}}, "negative_offset"},
		{"duplicate", []TensorMeta{meta("a", 0, 8), meta("a", 8, 8)}, "duplicate_name"},
		{"dtype", []TensorMeta{{Name: "a", DType: "float32", Shape: []int{1}, Size: 4}}, "unsupported_dtype"},
		{"size", []TensorMeta{{Name: "a", DType: DTypeFloat64, Shape: []int{3}, Size: 8}}, "size_mismatch"},
		{"shape", []TensorMeta{{Name: "a", DType: DTypeFloat64, Shape: []int{0}, Size: 0}}, "invalid_shape"},
		{"name", []TensorMeta{meta("a/b", 0, 8)}, "invalid_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(&Header{Tensors: tt.tensors}, 32, ValidationStrict)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.kind, vErr.Type)
		})
	}

	overlapping := &Header{Tensors: []TensorMeta{meta("a", 0, 16), meta("b", 8, 16)}}
	assert.NoError(t, ValidateHeader(overlapping, 32, ValidationNormal))
}
