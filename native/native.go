// Package native is the boundary between a loaded model handle and the
// runtime library that actually deserializes and executes it. Each
// runtime binding registers a Backend; a Backend opens a model file into a
// Peer, the runtime-side object the handle owns.
package native

import (
	"context"
	"errors"

	"github.com/gomithril/scriptmodule/ivalue"
)

// DefaultMethod is the conventional primary entry point of a model.
const DefaultMethod = "forward"

var (
	// ErrMethodNotFound is returned by a Peer asked to run an entry point
	// the model does not expose.
	ErrMethodNotFound = errors.New("method not found")
	// ErrArgumentType is returned by a Peer when inputs do not fit the
	// entry point's signature.
	ErrArgumentType = errors.New("argument type mismatch")
	// ErrUnsupportedFormat is returned when no backend claims a file.
	ErrUnsupportedFormat = errors.New("unsupported model format")
	// ErrBackendNotFound is returned when a backend is requested by name
	// and none is registered under it.
	ErrBackendNotFound = errors.New("backend not found")
)

// Peer is a loaded model living on the runtime side.
type Peer interface {
	// Forward runs the default entry point.
	Forward(ctx context.Context, inputs ...ivalue.Value) (ivalue.Value, error)
	// RunMethod runs the entry point called name.
	RunMethod(ctx context.Context, name string, inputs ...ivalue.Value) (ivalue.Value, error)
	// Methods lists the entry points the model exposes.
	Methods() []string
	// Destroy releases the runtime-side object.
	Destroy() error
}

// Backend binds one runtime library.
type Backend interface {
	Name() string
	// Extensions lists the file extensions (with leading dot) the backend
	// can open.
	Extensions() []string
	// Available reports whether the runtime library can be used in this
	// process.
	Available() bool
	// Priority orders backends claiming the same extension; lower wins.
	Priority() int
	// Open loads the model file at path.
	Open(path string) (Peer, error)
}
