package ivalue

import (
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type wireValue struct {
	Type  string              `json:"type"`
	Value jsoniter.RawMessage `json:"value,omitempty"`
}

type wireTensor struct {
	DType string              `json:"dtype"`
	Shape []int64             `json:"shape"`
	Data  jsoniter.RawMessage `json:"data"`
}

// MarshalJSON encodes v as {"type": <kind>, "value": <payload>}.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindNone:
		return json.Marshal(wireValue{Type: v.kind.String()})
	case KindTensor:
		payload = v.data.(*Tensor)
	case KindTensorList:
		payload = v.data.([]*Tensor)
	case KindDictLongKey:
		m := v.data.(map[int64]Value)
		keyed := make(map[string]Value, len(m))
		for k, e := range m {
			keyed[strconv.FormatInt(k, 10)] = e
		}
		payload = keyed
	default:
		payload = v.data
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Type: v.kind.String(), Value: raw})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (v *Value) UnmarshalJSON(b []byte) error {
	var w wireValue
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	kind, err := parseKind(w.Type)
	if err != nil {
		return err
	}
	if kind == KindNone {
		*v = None()
		return nil
	}
	if len(w.Value) == 0 {
		return fmt.Errorf("value of type %s has no payload", kind)
	}

	var data any
	switch kind {
	case KindTensor:
		t := new(Tensor)
		if err := json.Unmarshal(w.Value, t); err != nil {
			return err
		}
		data = t
	case KindBool:
		data, err = decodeAs[bool](w.Value)
	case KindLong:
		data, err = decodeAs[int64](w.Value)
	case KindDouble:
		data, err = decodeAs[float64](w.Value)
	case KindString:
		data, err = decodeAs[string](w.Value)
	case KindTuple, KindList:
		data, err = decodeAs[[]Value](w.Value)
	case KindBoolList:
		data, err = decodeAs[[]bool](w.Value)
	case KindLongList:
		data, err = decodeAs[[]int64](w.Value)
	case KindDoubleList:
		data, err = decodeAs[[]float64](w.Value)
	case KindTensorList:
		data, err = decodeAs[[]*Tensor](w.Value)
	case KindDictStringKey:
		data, err = decodeAs[map[string]Value](w.Value)
	case KindDictLongKey:
		var keyed map[string]Value
		if keyed, err = decodeAs[map[string]Value](w.Value); err == nil {
			m := make(map[int64]Value, len(keyed))
			for k, e := range keyed {
				n, perr := strconv.ParseInt(k, 10, 64)
				if perr != nil {
					return fmt.Errorf("dict key %q is not an integer", k)
				}
				m[n] = e
			}
			data = m
		}
	}
	if err != nil {
		return err
	}
	*v = Value{kind: kind, data: data}
	return nil
}

func decodeAs[T any](raw []byte) (T, error) {
	var out T
	err := json.Unmarshal(raw, &out)
	return out, err
}

// MarshalJSON encodes t as {"dtype", "shape", "data"}.
func (t *Tensor) MarshalJSON() ([]byte, error) {
	payload := t.data
	if bytes, ok := t.data.([]uint8); ok {
		ints := make([]int32, len(bytes))
		for i, b := range bytes {
			ints[i] = int32(b)
		}
		payload = ints
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	shape := t.shape
	if shape == nil {
		shape = []int64{}
	}
	return json.Marshal(wireTensor{DType: t.dtype.String(), Shape: shape, Data: data})
}

func (t *Tensor) UnmarshalJSON(b []byte) error {
	var w wireTensor
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	dtype, err := ParseDType(w.DType)
	if err != nil {
		return err
	}
	var decoded *Tensor
	switch dtype {
	case Float32:
		decoded, err = decodeTensor[float32](w)
	case Float64:
		decoded, err = decodeTensor[float64](w)
	case Int64:
		decoded, err = decodeTensor[int64](w)
	case Int32:
		decoded, err = decodeTensor[int32](w)
	case Int8:
		decoded, err = decodeTensor[int8](w)
	case Uint8:
		// []uint8 would otherwise travel as base64
		var ints []int32
		if ints, err = decodeAs[[]int32](w.Data); err == nil {
			bytes := make([]uint8, len(ints))
			for i, n := range ints {
				if n < 0 || n > math.MaxUint8 {
					return fmt.Errorf("uint8 tensor element %d out of range", n)
				}
				bytes[i] = uint8(n)
			}
			decoded, err = NewTensor(w.Shape, bytes)
		}
	}
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

func decodeTensor[T Element](w wireTensor) (*Tensor, error) {
	data, err := decodeAs[[]T](w.Data)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []T{}
	}
	return NewTensor(w.Shape, data)
}
