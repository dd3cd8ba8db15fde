package onnxgo

import (
	"fmt"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"gorgonia.org/tensor"
)

func toGorgonia(v ivalue.Value) (tensor.Tensor, error) {
	t, err := v.ToTensor()
	if err != nil {
		return nil, fmt.Errorf("%w: onnx inputs must be tensors, got %s", native.ErrArgumentType, v.Kind())
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: empty tensor of shape %v", native.ErrArgumentType, t.Shape())
	}
	shape := make([]int, 0, len(t.Shape()))
	for _, d := range t.Shape() {
		shape = append(shape, int(d))
	}
	switch data := t.Data().(type) {
	case []float32:
		return dense(shape, data), nil
	case []float64:
		return dense(shape, data), nil
	case []int64:
		return dense(shape, data), nil
	case []int32:
		return dense(shape, data), nil
	case []int8:
		return dense(shape, data), nil
	case []uint8:
		return dense(shape, data), nil
	}
	return nil, fmt.Errorf("%w: unsupported dtype %s", native.ErrArgumentType, t.DType())
}

func dense[T ivalue.Element](shape []int, data []T) tensor.Tensor {
	if len(shape) == 0 {
		return tensor.New(tensor.FromScalar(data[0]))
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

func fromGorgonia(t tensor.Tensor) (ivalue.Value, error) {
	dims := t.Shape()
	shape := make([]int64, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}

	var (
		out *ivalue.Tensor
		err error
	)
	switch data := t.Data().(type) {
	case []float32:
		out, err = ivalue.NewTensor(shape, append([]float32(nil), data...))
	case []float64:
		out, err = ivalue.NewTensor(shape, append([]float64(nil), data...))
	case []int64:
		out, err = ivalue.NewTensor(shape, append([]int64(nil), data...))
	case []int32:
		out, err = ivalue.NewTensor(shape, append([]int32(nil), data...))
	case []int8:
		out, err = ivalue.NewTensor(shape, append([]int8(nil), data...))
	case []uint8:
		out, err = ivalue.NewTensor(shape, append([]uint8(nil), data...))
	case float32:
		out, err = ivalue.NewTensor([]int64{}, []float32{data})
	case float64:
		out, err = ivalue.NewTensor([]int64{}, []float64{data})
	case int64:
		out, err = ivalue.NewTensor([]int64{}, []int64{data})
	case int32:
		out, err = ivalue.NewTensor([]int64{}, []int32{data})
	default:
		return ivalue.None(), fmt.Errorf("unsupported gonnx output %T", data)
	}
	if err != nil {
		return ivalue.None(), err
	}
	return ivalue.FromTensor(out), nil
}
