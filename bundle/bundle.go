// Package bundle groups several model files into one module. A YAML
// manifest maps entry point names to files; each file is opened by the
// backend its extension selects (or the one named in the manifest) and
// called through its default entry point.
//
//	name: text-encoder
//	methods:
//	  forward: encoder.onnx
//	  score:
//	    file: scorer.wasm
//	    backend: wasm
package bundle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// BackendName is the registry name of the bundle binding.
const BackendName = "bundle"

func init() {
	native.Register(&Backend{})
}

// ErrCycle is returned when a manifest reaches itself through its own
// methods, directly or through other bundles.
var ErrCycle = errors.New("bundle manifest cycle")

// Manifest is the YAML document describing a bundle.
type Manifest struct {
	Name    string                `yaml:"name"`
	Methods map[string]MethodSpec `yaml:"methods"`
}

// MethodSpec locates the file behind one entry point. A bare string is
// read as File.
type MethodSpec struct {
	File    string `yaml:"file"`
	Backend string `yaml:"backend"`
}

func (m *MethodSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		m.File = node.Value
		return nil
	}
	type plain MethodSpec
	return node.Decode((*plain)(m))
}

// ReadManifest parses and checks the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse bundle manifest %s: %w", path, err)
	}
	if _, ok := m.Methods[native.DefaultMethod]; !ok {
		return nil, fmt.Errorf("bundle manifest %s has no %s method", path, native.DefaultMethod)
	}
	for name, spec := range m.Methods {
		if spec.File == "" {
			return nil, fmt.Errorf("bundle manifest %s: method %s has no file", path, name)
		}
	}
	return &m, nil
}

type Backend struct{}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Extensions() []string { return []string{".yaml", ".yml"} }

func (b *Backend) Available() bool { return true }

func (b *Backend) Priority() int { return 50 }

func (b *Backend) Open(path string) (native.Peer, error) {
	if err := checkCycles(path, nil); err != nil {
		return nil, err
	}
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}

	p := &Peer{name: m.Name, methods: make(map[string]native.Peer, len(m.Methods))}
	for name, spec := range m.Methods {
		peer, err := openMethod(resolve(path, spec.File), spec.Backend)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("bundle method %s: %w", name, err), p.Destroy())
		}
		p.methods[name] = peer
	}
	log.Debug().Str("bundle", m.Name).Strs("methods", p.Methods()).Msg("Opened bundle")
	return p, nil
}

func resolve(manifest, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(filepath.Dir(manifest), file)
}

// checkCycles walks the manifests reachable from path and fails if one of
// them is already on the stack of manifests being opened.
func checkCycles(path string, stack []string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	for _, seen := range stack {
		if seen == abs {
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(append(stack, abs), " -> "))
		}
	}
	m, err := ReadManifest(abs)
	if err != nil {
		return err
	}
	stack = append(stack[:len(stack):len(stack)], abs)
	for _, spec := range m.Methods {
		file := resolve(abs, spec.File)
		if !isBundle(file, spec.Backend) {
			continue
		}
		if err := checkCycles(file, stack); err != nil {
			return err
		}
	}
	return nil
}

func isBundle(file, backend string) bool {
	if backend != "" {
		return backend == BackendName
	}
	b, err := native.ForPath(file)
	return err == nil && b.Name() == BackendName
}

func openMethod(file, backend string) (native.Peer, error) {
	if backend == "" {
		return native.Open(file)
	}
	b, err := native.Lookup(backend)
	if err != nil {
		return nil, err
	}
	return b.Open(file)
}

// Peer dispatches each entry point to the default entry point of its own
// model file.
type Peer struct {
	name    string
	methods map[string]native.Peer
}

func (p *Peer) Forward(ctx context.Context, inputs ...ivalue.Value) (ivalue.Value, error) {
	return p.RunMethod(ctx, native.DefaultMethod, inputs...)
}

func (p *Peer) RunMethod(ctx context.Context, name string, inputs ...ivalue.Value) (ivalue.Value, error) {
	peer, ok := p.methods[name]
	if !ok {
		return ivalue.None(), fmt.Errorf("%w: %q in bundle %s", native.ErrMethodNotFound, name, p.name)
	}
	return peer.Forward(ctx, inputs...)
}

func (p *Peer) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Peer) Destroy() error {
	var err error
	for _, peer := range p.methods {
		err = errors.Join(err, peer.Destroy())
	}
	p.methods = nil
	return err
}
