package onnx

import (
	"errors"

	ort "github.com/yalue/onnxruntime_go"
)

// ModelIO manages input and output tensors for one session run
type ModelIO struct {
	InputTensors  []ort.Value
	OutputTensors []ort.Value
}

// AddInput adds an input tensor to the run
func (io *ModelIO) AddInput(tensor ort.Value) {
	io.InputTensors = append(io.InputTensors, tensor)
}

// AddOutput adds an output slot; a nil tensor is allocated by onnxruntime
func (io *ModelIO) AddOutput(tensor ort.Value) {
	io.OutputTensors = append(io.OutputTensors, tensor)
}

func (io *ModelIO) Destroy() error {
	var err error
	for _, tensor := range io.InputTensors {
		if tensor != nil {
			err = errors.Join(err, tensor.Destroy())
		}
	}

	for _, tensor := range io.OutputTensors {
		if tensor != nil {
			err = errors.Join(err, tensor.Destroy())
		}
	}
	return err
}
