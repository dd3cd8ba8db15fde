package ivalue

import (
	"fmt"
	"math"
)

// DType identifies the element type of a Tensor.
type DType uint8

const (
	Float32 DType = iota + 1
	Float64
	Int64
	Int32
	Int8
	Uint8
)

var dtypeNames = map[DType]string{
	Float32: "float32",
	Float64: "float64",
	Int64:   "int64",
	Int32:   "int32",
	Int8:    "int8",
	Uint8:   "uint8",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// ParseDType returns the DType named by s.
func ParseDType(s string) (DType, error) {
	for d, name := range dtypeNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown dtype %q", s)
}

// Element lists the Go types a Tensor can hold.
type Element interface {
	~float32 | ~float64 | ~int64 | ~int32 | ~int8 | ~uint8
}

// Tensor is a dense, row-major n-dimensional array.
type Tensor struct {
	dtype DType
	shape []int64
	data  any
}

// NewTensor builds a tensor over data. The slice is not copied.
func NewTensor[T Element](shape []int64, data []T) (*Tensor, error) {
	n, err := Numel(shape)
	if err != nil {
		return nil, err
	}
	if n != int64(len(data)) {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &Tensor{
		dtype: dtypeOf[T](),
		shape: append([]int64(nil), shape...),
		data:  data,
	}, nil
}

// MustTensor is like NewTensor but panics on a shape mismatch.
func MustTensor[T Element](shape []int64, data []T) *Tensor {
	t, err := NewTensor(shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// Numel returns the number of elements described by shape.
func Numel(shape []int64) (int64, error) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		if d != 0 && n > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows int64", shape)
		}
		n *= d
	}
	return n, nil
}

func dtypeOf[T Element]() DType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int64:
		return Int64
	case int32:
		return Int32
	case int8:
		return Int8
	case uint8:
		return Uint8
	}
	return 0
}

func (t *Tensor) DType() DType { return t.dtype }

// Shape returns a copy of the tensor's dimensions.
func (t *Tensor) Shape() []int64 { return append([]int64(nil), t.shape...) }

// Len returns the number of elements.
func (t *Tensor) Len() int {
	switch d := t.data.(type) {
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []int64:
		return len(d)
	case []int32:
		return len(d)
	case []int8:
		return len(d)
	case []uint8:
		return len(d)
	}
	return 0
}

// Data returns the backing slice as an untyped value.
func (t *Tensor) Data() any { return t.data }

// TensorData returns the backing slice of t typed as []T.
func TensorData[T Element](t *Tensor) ([]T, error) {
	data, ok := t.data.([]T)
	if !ok {
		return nil, fmt.Errorf("tensor holds %s, not %s", t.dtype, dtypeOf[T]())
	}
	return data, nil
}

func (t *Tensor) Float32s() ([]float32, error) { return TensorData[float32](t) }
func (t *Tensor) Float64s() ([]float64, error) { return TensorData[float64](t) }
func (t *Tensor) Int64s() ([]int64, error) { return TensorData[int64](t) }
func (t *Tensor) Int32s() ([]int32, error) { return TensorData[int32](t) }

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(%s, %v)", t.dtype, t.shape)
}
