// Package onnxgo runs ONNX graphs with the pure-Go gonnx interpreter. It
// needs neither cgo nor a shared library and is used when ONNX Runtime is
// unavailable.
package onnxgo

import (
	"context"
	"fmt"

	"github.com/advancedclimatesystems/gonnx"
	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/rs/zerolog/log"
)

// BackendName is the registry name of the pure-Go ONNX binding.
const BackendName = "go"

func init() {
	native.Register(&Backend{})
}

type Backend struct{}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Extensions() []string { return []string{".onnx"} }

func (b *Backend) Available() bool { return true }

// Priority places the interpreter behind ONNX Runtime.
func (b *Backend) Priority() int { return 100 }

func (b *Backend) Open(path string) (native.Peer, error) {
	model, err := gonnx.NewModelFromFile(path)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Strs("inputs", model.InputNames()).Strs("outputs", model.OutputNames()).Msg("Loaded gonnx model")
	return &Peer{model: model, inputs: model.InputNames(), outputs: model.OutputNames()}, nil
}

// Peer is a gonnx model. Like the ONNX Runtime binding it exposes the
// graph as forward, binds inputs positionally and returns a tuple when
// the graph has several outputs.
type Peer struct {
	model   *gonnx.Model
	inputs  []string
	outputs []string
}

func (p *Peer) Forward(ctx context.Context, inputs ...ivalue.Value) (ivalue.Value, error) {
	if len(inputs) != len(p.inputs) {
		return ivalue.None(), fmt.Errorf("%w: graph takes %d inputs %v, got %d", native.ErrArgumentType, len(p.inputs), p.inputs, len(inputs))
	}
	feed := gonnx.Tensors{}
	for i, in := range inputs {
		t, err := toGorgonia(in)
		if err != nil {
			return ivalue.None(), err
		}
		feed[p.inputs[i]] = t
	}

	out, err := p.model.Run(feed)
	if err != nil {
		return ivalue.None(), err
	}

	results := make([]ivalue.Value, len(p.outputs))
	for i, name := range p.outputs {
		t, ok := out[name]
		if !ok {
			return ivalue.None(), fmt.Errorf("gonnx produced no value for output %q", name)
		}
		v, err := fromGorgonia(t)
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

// Destroy is a no-op: the interpreter holds only Go memory.
func (p *Peer) Destroy() error { return nil }
