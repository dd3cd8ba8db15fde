// Package ivalue defines the tagged union exchanged with model runtimes:
// the inputs passed to an entry point and the result it returns.
package ivalue

import (
	"errors"
	"fmt"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindTensor
	KindBool
	KindLong
	KindDouble
	KindString
	KindTuple
	KindBoolList
	KindLongList
	KindDoubleList
	KindTensorList
	KindList
	KindDictStringKey
	KindDictLongKey
)

var kindNames = [...]string{
	KindNone:          "none",
	KindTensor:        "tensor",
	KindBool:          "bool",
	KindLong:          "long",
	KindDouble:        "double",
	KindString:        "string",
	KindTuple:         "tuple",
	KindBoolList:      "bool_list",
	KindLongList:      "long_list",
	KindDoubleList:    "double_list",
	KindTensorList:    "tensor_list",
	KindList:          "list",
	KindDictStringKey: "dict_string_key",
	KindDictLongKey:   "dict_long_key",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func parseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// ErrKindMismatch is returned by the To* accessors when the value holds a
// different kind.
var ErrKindMismatch = errors.New("value kind mismatch")

// Value is an immutable tagged union. The zero Value is None.
type Value struct {
	kind Kind
	data any
}

func None() Value { return Value{kind: KindNone} }
func FromTensor(t *Tensor) Value { return Value{kind: KindTensor, data: t} }
func FromBool(b bool) Value { return Value{kind: KindBool, data: b} }
func FromLong(n int64) Value { return Value{kind: KindLong, data: n} }
func FromDouble(f float64) Value { return Value{kind: KindDouble, data: f} }
func FromString(s string) Value { return Value{kind: KindString, data: s} }
func TupleFrom(vs ...Value) Value { return Value{kind: KindTuple, data: vs} }
func ListFrom(vs ...Value) Value { return Value{kind: KindList, data: vs} }
func BoolListFrom(bs ...bool) Value { return Value{kind: KindBoolList, data: bs} }
func LongListFrom(ns ...int64) Value { return Value{kind: KindLongList, data: ns} }

func DoubleListFrom(fs ...float64) Value {
	return Value{kind: KindDoubleList, data: fs}
}

func TensorListFrom(ts ...*Tensor) Value {
	return Value{kind: KindTensorList, data: ts}
}

func DictStringKeyFrom(m map[string]Value) Value {
	return Value{kind: KindDictStringKey, data: m}
}

func DictLongKeyFrom(m map[int64]Value) Value {
	return Value{kind: KindDictLongKey, data: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNone() bool { return v.kind == KindNone }
func (v Value) IsTensor() bool { return v.kind == KindTensor }
func (v Value) IsBool() bool { return v.kind == KindBool }
func (v Value) IsLong() bool { return v.kind == KindLong }
func (v Value) IsDouble() bool { return v.kind == KindDouble }
func (v Value) IsString() bool { return v.kind == KindString }
func (v Value) IsTuple() bool { return v.kind == KindTuple }
func (v Value) IsList() bool { return v.kind == KindList }

func (v Value) mismatch(want Kind) error {
	return fmt.Errorf("%w: want %s, have %s", ErrKindMismatch, want, v.kind)
}

func (v Value) ToTensor() (*Tensor, error) {
	if v.kind != KindTensor {
		return nil, v.mismatch(KindTensor)
	}
	return v.data.(*Tensor), nil
}

func (v Value) ToBool() (bool, error) {
	if v.kind != KindBool {
		return false, v.mismatch(KindBool)
	}
	return v.data.(bool), nil
}

func (v Value) ToLong() (int64, error) {
	if v.kind != KindLong {
		return 0, v.mismatch(KindLong)
	}
	return v.data.(int64), nil
}

func (v Value) ToDouble() (float64, error) {
	if v.kind != KindDouble {
		return 0, v.mismatch(KindDouble)
	}
	return v.data.(float64), nil
}

func (v Value) ToStr() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch(KindString)
	}
	return v.data.(string), nil
}

func (v Value) ToTuple() ([]Value, error) {
	if v.kind != KindTuple {
		return nil, v.mismatch(KindTuple)
	}
	return v.data.([]Value), nil
}

func (v Value) ToList() ([]Value, error) {
	if v.kind != KindList {
		return nil, v.mismatch(KindList)
	}
	return v.data.([]Value), nil
}

func (v Value) ToBoolList() ([]bool, error) {
	if v.kind != KindBoolList {
		return nil, v.mismatch(KindBoolList)
	}
	return v.data.([]bool), nil
}

func (v Value) ToLongList() ([]int64, error) {
	if v.kind != KindLongList {
		return nil, v.mismatch(KindLongList)
	}
	return v.data.([]int64), nil
}

func (v Value) ToDoubleList() ([]float64, error) {
	if v.kind != KindDoubleList {
		return nil, v.mismatch(KindDoubleList)
	}
	return v.data.([]float64), nil
}

func (v Value) ToTensorList() ([]*Tensor, error) {
	if v.kind != KindTensorList {
		return nil, v.mismatch(KindTensorList)
	}
	return v.data.([]*Tensor), nil
}

func (v Value) ToDictStringKey() (map[string]Value, error) {
	if v.kind != KindDictStringKey {
		return nil, v.mismatch(KindDictStringKey)
	}
	return v.data.(map[string]Value), nil
}

func (v Value) ToDictLongKey() (map[int64]Value, error) {
	if v.kind != KindDictLongKey {
		return nil, v.mismatch(KindDictLongKey)
	}
	return v.data.(map[int64]Value), nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindTensor:
		return v.data.(*Tensor).String()
	default:
		return fmt.Sprintf("%s(%v)", v.kind, v.data)
	}
}
