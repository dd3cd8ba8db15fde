package onnx

import (
	"context"
	"fmt"
	"os"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// BackendName is the registry name of the ONNX Runtime binding.
const BackendName = "ort"

func init() {
	native.Register(&Backend{})
}

// Backend opens .onnx files with ONNX Runtime.
type Backend struct{}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Extensions() []string { return []string{".onnx", ".ort"} }

// Available reports whether the shared library can be found.
func (b *Backend) Available() bool {
	if ort.IsInitialized() {
		return true
	}
	path := currentLibraryPath()
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func currentLibraryPath() string {
	envMu.Lock()
	defer envMu.Unlock()
	return currentOptions().LibraryPath
}

func (b *Backend) Priority() int { return 10 }

// Open initializes the environment if needed and creates a session for
// the model at path.
func (b *Backend) Open(path string) (native.Peer, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, err
	}
	inputNames := make([]string, len(inputs))
	for i, info := range inputs {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputs))
	for i, info := range outputs {
		outputNames[i] = info.Name
	}

	session, err := NewDynamicSession(path, inputNames, outputNames)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Strs("inputs", inputNames).Strs("outputs", outputNames).Msg("Created ONNX session")
	return &Peer{session: session, inputs: inputNames, outputs: outputNames}, nil
}

// Peer is one ONNX Runtime session. The graph is the model's only entry
// point, exposed as forward.
type Peer struct {
	session *ort.DynamicAdvancedSession
	inputs  []string
	outputs []string
}

// Forward binds inputs to the graph inputs in declaration order. A graph
// with one output returns a tensor, otherwise a tuple of tensors in
// declaration order.
func (p *Peer) Forward(ctx context.Context, inputs ...ivalue.Value) (ivalue.Value, error) {
	if len(inputs) != len(p.inputs) {
		return ivalue.None(), fmt.Errorf("%w: graph takes %d inputs %v, got %d", native.ErrArgumentType, len(p.inputs), p.inputs, len(inputs))
	}

	io := &ModelIO{}
	defer func() {
		if err := io.Destroy(); err != nil {
			log.Error().Err(err).Msg("Failed to destroy ONNX tensors")
		}
	}()
	for _, in := range inputs {
		tensor, err := toOrt(in)
		if err != nil {
			return ivalue.None(), err
		}
		io.AddInput(tensor)
	}
	for range p.outputs {
		io.AddOutput(nil)
	}

	if err := p.session.Run(io.InputTensors, io.OutputTensors); err != nil {
		return ivalue.None(), err
	}

	results := make([]ivalue.Value, len(io.OutputTensors))
	for i, out := range io.OutputTensors {
		v, err := fromOrt(out)
		if err != nil {
			return ivalue.None(), err
		}
		results[i] = v
	}
	if len(results) == 1 {
		return results[0], nil
	}
	return ivalue.TupleFrom(results...), nil
}

func (p *Peer) RunMethod(ctx context.Context, name string, inputs ...ivalue.Value) (ivalue.Value, error) {
	if name != native.DefaultMethod {
		return ivalue.None(), fmt.Errorf("%w: %q (onnx graphs only expose %s)", native.ErrMethodNotFound, name, native.DefaultMethod)
	}
	return p.Forward(ctx, inputs...)
}

func (p *Peer) Methods() []string { return []string{native.DefaultMethod} }

// Inputs returns the graph input names in declaration order.
func (p *Peer) Inputs() []string { return p.inputs }

// Outputs returns the graph output names in declaration order.
func (p *Peer) Outputs() []string { return p.outputs }

func (p *Peer) Destroy() error {
	return p.session.Destroy()
}
