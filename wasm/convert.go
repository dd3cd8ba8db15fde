package wasm

import (
	"fmt"
	"math"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/tetratelabs/wazero/api"
)

func encodeParams(name string, types []api.ValueType, inputs []ivalue.Value) ([]uint64, error) {
	if len(inputs) != len(types) {
		return nil, fmt.Errorf("%w: %s takes %d arguments, got %d", native.ErrArgumentType, name, len(types), len(inputs))
	}
	params := make([]uint64, len(types))
	for i, vt := range types {
		p, err := encode(vt, inputs[i])
		if err != nil {
			return nil, fmt.Errorf("%w: %s argument %d: %v", native.ErrArgumentType, name, i, err)
		}
		params[i] = p
	}
	return params, nil
}

func encode(vt api.ValueType, v ivalue.Value) (uint64, error) {
	switch vt {
	case api.ValueTypeI32:
		if b, err := v.ToBool(); err == nil {
			if b {
				return api.EncodeI32(1), nil
			}
			return api.EncodeI32(0), nil
		}
		n, err := v.ToLong()
		if err != nil {
			return 0, err
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%d overflows i32", n)
		}
		return api.EncodeI32(int32(n)), nil
	case api.ValueTypeI64:
		n, err := v.ToLong()
		if err != nil {
			return 0, err
		}
		return api.EncodeI64(n), nil
	case api.ValueTypeF32:
		f, err := v.ToDouble()
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		f, err := v.ToDouble()
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(f), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(vt))
}

func decodeResults(types []api.ValueType, results []uint64) (ivalue.Value, error) {
	values := make([]ivalue.Value, len(types))
	for i, vt := range types {
		switch vt {
		case api.ValueTypeI32:
			values[i] = ivalue.FromLong(int64(api.DecodeI32(results[i])))
		case api.ValueTypeI64:
			values[i] = ivalue.FromLong(int64(results[i]))
		case api.ValueTypeF32:
			values[i] = ivalue.FromDouble(float64(api.DecodeF32(results[i])))
		case api.ValueTypeF64:
			values[i] = ivalue.FromDouble(api.DecodeF64(results[i]))
		default:
			return ivalue.None(), fmt.Errorf("unsupported result type %s", api.ValueTypeName(vt))
		}
	}
	switch len(values) {
	case 0:
		return ivalue.None(), nil
	case 1:
		return values[0], nil
	}
	return ivalue.TupleFrom(values...), nil
}
