package quant

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/born-ml/spectra/internal/arch"
)

// wireVersion is bumped whenever a field changes meaning.
const wireVersion = 1

// Artifact fields.
const (
	fieldVersion     protowire.Number = 1
	fieldTask        protowire.Number = 2
	fieldWidth       protowire.Number = 3
	fieldInputWidth  protowire.Number = 4
	fieldSpecs       protowire.Number = 5
	fieldInput       protowire.Number = 6
	fieldParam       protowire.Number = 7
	fieldActivation  protowire.Number = 8
	paramName        protowire.Number = 1
	paramShape       protowire.Number = 2
	paramCodes       protowire.Number = 3
	paramScale       protowire.Number = 4
	paramValues      protowire.Number = 5
	qparamsScale     protowire.Number = 1
	qparamsZeroPoint protowire.Number = 2
)

// ErrCorrupt is returned for artifacts that cannot be decoded.
var ErrCorrupt = errors.New("quant: corrupt artifact")

// MarshalBinary encodes the artifact in protobuf wire format.
func (a *Artifact) MarshalBinary() ([]byte, error) {
	specs, err := json.Marshal(a.Specs)
	if err != nil {
		return nil, fmt.Errorf("quant: encode layers: %w", err)
	}

	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, wireVersion)
	b = protowire.AppendTag(b, fieldTask, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Head.Task))
	b = protowire.AppendTag(b, fieldWidth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Head.Width))
	b = protowire.AppendTag(b, fieldInputWidth, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.InputWidth))
	b = protowire.AppendTag(b, fieldSpecs, protowire.BytesType)
	b = protowire.AppendBytes(b, specs)
	b = protowire.AppendTag(b, fieldInput, protowire.BytesType)
	b = protowire.AppendBytes(b, appendQParams(nil, a.Input))
	for _, p := range a.Params {
		b = protowire.AppendTag(b, fieldParam, protowire.BytesType)
		b = protowire.AppendBytes(b, appendParam(nil, p))
	}
	for _, q := range a.Activations {
		b = protowire.AppendTag(b, fieldActivation, protowire.BytesType)
		b = protowire.AppendBytes(b, appendQParams(nil, q))
	}
	return b, nil
}

func appendQParams(b []byte, q QParams) []byte {
	b = protowire.AppendTag(b, qparamsScale, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(q.Scale))
	b = protowire.AppendTag(b, qparamsZeroPoint, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(q.ZeroPoint)))
}

func appendParam(b []byte, p Param) []byte {
	b = protowire.AppendTag(b, paramName, protowire.BytesType)
	b = protowire.AppendString(b, p.Name)

	var shape []byte
	for _, d := range p.Shape {
		shape = protowire.AppendVarint(shape, uint64(d))
	}
	b = protowire.AppendTag(b, paramShape, protowire.BytesType)
	b = protowire.AppendBytes(b, shape)

	if p.Quantized() {
		codes := make([]byte, len(p.Codes))
		for i, c := range p.Codes {
			codes[i] = byte(c)
		}
		b = protowire.AppendTag(b, paramCodes, protowire.BytesType)
		b = protowire.AppendBytes(b, codes)
		b = protowire.AppendTag(b, paramScale, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, math.Float64bits(p.Scale))
	}

	var vals []byte
	for _, v := range p.Values {
		vals = protowire.AppendFixed64(vals, math.Float64bits(v))
	}
	b = protowire.AppendTag(b, paramValues, protowire.BytesType)
	return protowire.AppendBytes(b, vals)
}

// UnmarshalBinary decodes an artifact written by MarshalBinary. Unknown
// fields are skipped.
func (a *Artifact) UnmarshalBinary(data []byte) error {
	var out Artifact
	var version uint64
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			version = v
			return n, nil
		case num == fieldTask && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			out.Head.Task = arch.Task(v)
			return n, nil
		case num == fieldWidth && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			out.Head.Width = int(v)
			return n, nil
		case num == fieldInputWidth && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			out.InputWidth = int(v)
			return n, nil
		case num == fieldSpecs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if err := json.Unmarshal(v, &out.Specs); err != nil {
				return 0, fmt.Errorf("%w: layers: %v", ErrCorrupt, err)
			}
			return n, nil
		case num == fieldInput && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			q, err := parseQParams(v)
			out.Input = q
			return n, err
		case num == fieldParam && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			p, err := parseParam(v)
			out.Params = append(out.Params, p)
			return n, err
		case num == fieldActivation && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			q, err := parseQParams(v)
			out.Activations = append(out.Activations, q)
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return err
	}
	if version != wireVersion {
		return fmt.Errorf("%w: version %d, expected %d", ErrCorrupt, version, wireVersion)
	}
	if err := out.Head.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(out.Specs) == 0 || len(out.Activations) != len(out.Specs) {
		return fmt.Errorf("%w: %d activation ranges for %d layers", ErrCorrupt, len(out.Activations), len(out.Specs))
	}
	*a = out
	return nil
}

// walk iterates over the fields of a message. fn consumes the field value
// and returns its length, or a negative protowire error code.
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorrupt, protowire.ParseError(n))
		}
		data = data[n:]
		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorrupt, num, protowire.ParseError(m))
		}
		data = data[m:]
	}
	return nil
}

func parseQParams(data []byte) (QParams, error) {
	var q QParams
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == qparamsScale && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			q.Scale = math.Float64frombits(v)
			return n, nil
		case num == qparamsZeroPoint && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			q.ZeroPoint = int32(protowire.DecodeZigZag(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err == nil && q.Scale <= 0 {
		err = fmt.Errorf("%w: non-positive scale %v", ErrCorrupt, q.Scale)
	}
	return q, err
}

func parseParam(data []byte) (Param, error) {
	var p Param
	err := walk(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.Fixed64Type && num == paramScale {
			v, n := protowire.ConsumeFixed64(b)
			p.Scale = math.Float64frombits(v)
			return n, nil
		}
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		switch num {
		case paramName:
			p.Name = string(v)
		case paramShape:
			for len(v) > 0 {
				d, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return m, nil
				}
				p.Shape = append(p.Shape, int(d))
				v = v[m:]
			}
		case paramCodes:
			p.Codes = make([]int8, len(v))
			for i, c := range v {
				p.Codes[i] = int8(c)
			}
		case paramValues:
			if len(v)%8 != 0 {
				return 0, fmt.Errorf("%w: %s: values are not a multiple of 8 bytes", ErrCorrupt, p.Name)
			}
			p.Values = make([]float64, len(v)/8)
			for i := range p.Values {
				u, _ := protowire.ConsumeFixed64(v[i*8:])
				p.Values[i] = math.Float64frombits(u)
			}
		}
		return n, nil
	})
	return p, err
}
