package onnx

import (
	"fmt"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	ort "github.com/yalue/onnxruntime_go"
)

// toOrt creates an onnxruntime tensor over the data of v.
func toOrt(v ivalue.Value) (ort.Value, error) {
	t, err := v.ToTensor()
	if err != nil {
		return nil, fmt.Errorf("%w: onnx inputs must be tensors, got %s", native.ErrArgumentType, v.Kind())
	}
	shape := ort.NewShape(t.Shape()...)
	switch data := t.Data().(type) {
	case []float32:
		return ort.NewTensor(shape, data)
	case []float64:
		return ort.NewTensor(shape, data)
	case []int64:
		return ort.NewTensor(shape, data)
	case []int32:
		return ort.NewTensor(shape, data)
	case []int8:
		return ort.NewTensor(shape, data)
	case []uint8:
		return ort.NewTensor(shape, data)
	}
	return nil, fmt.Errorf("%w: unsupported dtype %s", native.ErrArgumentType, t.DType())
}

// fromOrt copies an onnxruntime tensor into a Value, so the result
// survives destruction of the ort value.
func fromOrt(v ort.Value) (ivalue.Value, error) {
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		return copyTensor(t)
	case *ort.Tensor[float64]:
		return copyTensor(t)
	case *ort.Tensor[int64]:
		return copyTensor(t)
	case *ort.Tensor[int32]:
		return copyTensor(t)
	case *ort.Tensor[int8]:
		return copyTensor(t)
	case *ort.Tensor[uint8]:
		return copyTensor(t)
	}
	return ivalue.None(), fmt.Errorf("unsupported onnx output %T", v)
}

func copyTensor[T ivalue.Element](t *ort.Tensor[T]) (ivalue.Value, error) {
	data := append([]T(nil), t.GetData()...)
	if data == nil {
		data = []T{}
	}
	out, err := ivalue.NewTensor([]int64(t.GetShape()), data)
	if err != nil {
		return ivalue.None(), err
	}
	return ivalue.FromTensor(out), nil
}
