// Package scriptmodule loads serialized models and runs their entry points
// through an in-process runtime library.
//
// A Module owns one runtime-side object for its lifetime. It does no work
// of its own: inputs, results and errors pass through unchanged.
//
//	m, err := scriptmodule.Load("/models/encoder.onnx")
//	if err != nil {
//		return err
//	}
//	defer m.Close()
//	out, err := m.Forward(ivalue.FromTensor(ids), ivalue.FromTensor(mask))
package scriptmodule

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/rs/zerolog/log"
)

// Version of the library
const Version = "v0.1.0"

// ErrClosed is returned by calls on a Module after Close.
var ErrClosed = errors.New("module is closed")

// Module is a handle to a model loaded by a runtime backend.
//
// Calls are forwarded without locking; whether a Module may be used from
// several goroutines at once depends on the backend that loaded it.
type Module struct {
	path    string
	backend string
	peer    native.Peer
	closed  atomic.Bool
}

type options struct {
	backend string
}

// Option configures Load.
type Option func(*options)

// WithBackend forces the named backend instead of choosing one by file
// extension.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// Load opens the serialized model at path. Any failure reported by the
// backend is returned unchanged and no Module is produced.
func Load(path string, opts ...Option) (*Module, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	var (
		b   native.Backend
		err error
	)
	if o.backend != "" {
		b, err = native.Lookup(o.backend)
	} else {
		b, err = native.ForPath(path)
	}
	if err != nil {
		return nil, err
	}

	peer, err := b.Open(path)
	if err != nil {
		return nil, err
	}

	m := &Module{path: path, backend: b.Name(), peer: peer}
	runtime.SetFinalizer(m, (*Module).release)
	log.Debug().Str("backend", b.Name()).Str("path", path).Msg("Loaded module")
	return m, nil
}

// Forward runs the model's default entry point.
func (m *Module) Forward(inputs ...ivalue.Value) (ivalue.Value, error) {
	return m.ForwardContext(context.Background(), inputs...)
}

// ForwardContext is Forward with a context handed to the backend. The
// module is kept reachable until the backend returns, so the finalizer
// never releases a model that is still running.
func (m *Module) ForwardContext(ctx context.Context, inputs ...ivalue.Value) (ivalue.Value, error) {
	defer runtime.KeepAlive(m)
	if m.closed.Load() {
		return ivalue.None(), ErrClosed
	}
	return m.peer.Forward(ctx, inputs...)
}

// RunMethod runs the entry point called name. The name is not checked
// here; an unknown name fails the way the backend fails.
func (m *Module) RunMethod(name string, inputs ...ivalue.Value) (ivalue.Value, error) {
	return m.RunMethodContext(context.Background(), name, inputs...)
}

// RunMethodContext is RunMethod with a context handed to the backend.
func (m *Module) RunMethodContext(ctx context.Context, name string, inputs ...ivalue.Value) (ivalue.Value, error) {
	defer runtime.KeepAlive(m)
	if m.closed.Load() {
		return ivalue.None(), ErrClosed
	}
	return m.peer.RunMethod(ctx, name, inputs...)
}

// Methods lists the entry points reported by the backend, or nil once the
// module is closed.
func (m *Module) Methods() []string {
	defer runtime.KeepAlive(m)
	if m.closed.Load() {
		return nil
	}
	return m.peer.Methods()
}

// Path returns the file the module was loaded from.
func (m *Module) Path() string { return m.path }

// Backend returns the name of the backend that loaded the module.
func (m *Module) Backend() string { return m.backend }

// Close releases the runtime-side model. Calls in flight must have
// returned before Close is called.
func (m *Module) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	runtime.SetFinalizer(m, nil)
	log.Debug().Str("path", m.path).Msg("Closing module")
	return m.peer.Destroy()
}

func (m *Module) release() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	log.Warn().Str("path", m.path).Msg("Module was not closed; releasing in finalizer")
	if err := m.peer.Destroy(); err != nil {
		log.Error().Err(err).Str("path", m.path).Msg("Failed to release module")
	}
}
