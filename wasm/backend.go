// Package wasm binds WebAssembly modules through wazero. Every exported
// function of a module is an entry point; forward is the default one.
package wasm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// BackendName is the registry name of the WebAssembly binding.
const BackendName = "wasm"

func init() {
	native.Register(&Backend{})
}

type Backend struct{}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Extensions() []string { return []string{".wasm"} }

func (b *Backend) Available() bool { return true }

func (b *Backend) Priority() int { return 50 }

func (b *Backend) Open(path string) (native.Peer, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	peer, err := Instantiate(context.Background(), code)
	if err != nil {
		return nil, err
	}
	return peer, nil
}

// Instantiate compiles and instantiates a module from its binary form.
// WASI preview1 imports are provided; reactor modules get _initialize
// run before the first call.
//
// A call whose context is cancelled while running is aborted. wazero
// closes the instance when that happens, so the next call starts from a
// fresh instance and any state the module kept in memory is lost.
func Instantiate(ctx context.Context, code []byte) (*Peer, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, err
	}

	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}

	mod, err := r.InstantiateModule(ctx, compiled, moduleConfig())
	if err != nil {
		r.Close(ctx)
		return nil, err
	}

	names := make([]string, 0, len(compiled.ExportedFunctions()))
	for name := range compiled.ExportedFunctions() {
		names = append(names, name)
	}
	sort.Strings(names)
	log.Debug().Strs("exports", names).Msg("Instantiated wasm module")

	return &Peer{runtime: r, compiled: compiled, module: mod, names: names}, nil
}

func moduleConfig() wazero.ModuleConfig {
	return wazero.NewModuleConfig().WithStartFunctions("_initialize")
}

// Peer is one instantiated module. Calls are serialized because a wazero
// module instance is not safe for concurrent use.
type Peer struct {
	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	module   api.Module
	names    []string
}

func (p *Peer) Forward(ctx context.Context, inputs ...ivalue.Value) (ivalue.Value, error) {
	return p.RunMethod(ctx, native.DefaultMethod, inputs...)
}

func (p *Peer) RunMethod(ctx context.Context, name string, inputs ...ivalue.Value) (ivalue.Value, error) {
	if err := ctx.Err(); err != nil {
		return ivalue.None(), err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	mod, err := p.instance()
	if err != nil {
		return ivalue.None(), err
	}
	fn := mod.ExportedFunction(name)
	if fn == nil {
		return ivalue.None(), fmt.Errorf("%w: %q", native.ErrMethodNotFound, name)
	}
	def := fn.Definition()

	params, err := encodeParams(name, def.ParamTypes(), inputs)
	if err != nil {
		return ivalue.None(), err
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return ivalue.None(), err
	}
	return decodeResults(def.ResultTypes(), results)
}

// instance returns the live module, instantiating it again if a cancelled
// call closed it. Callers hold p.mu.
func (p *Peer) instance() (api.Module, error) {
	if !p.module.IsClosed() {
		return p.module, nil
	}
	log.Debug().Msg("Re-instantiating wasm module closed by a cancelled call")
	mod, err := p.runtime.InstantiateModule(context.Background(), p.compiled, moduleConfig())
	if err != nil {
		return nil, err
	}
	p.module = mod
	return mod, nil
}

func (p *Peer) Methods() []string { return p.names }

func (p *Peer) Destroy() error {
	return p.runtime.Close(context.Background())
}
