// Package nativetest provides a recording stand-in for a runtime binding.
package nativetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
)

// Call records one invocation received by a Peer.
type Call struct {
	Ctx    context.Context
	Method string
	Inputs []ivalue.Value
}

// Peer records every call and answers with Result/Err, or with Handler
// when set.
type Peer struct {
	Path    string
	Result  ivalue.Value
	Err     error
	Handler func(method string, inputs []ivalue.Value) (ivalue.Value, error)
	Names   []string

	mu        sync.Mutex
	calls     []Call
	destroyed int
}

func (p *Peer) Forward(ctx context.Context, inputs ...ivalue.Value) (ivalue.Value, error) {
	return p.call(ctx, native.DefaultMethod, inputs)
}

func (p *Peer) RunMethod(ctx context.Context, name string, inputs ...ivalue.Value) (ivalue.Value, error) {
	return p.call(ctx, name, inputs)
}

func (p *Peer) call(ctx context.Context, method string, inputs []ivalue.Value) (ivalue.Value, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Ctx: ctx, Method: method, Inputs: inputs})
	p.mu.Unlock()
	if p.Handler != nil {
		return p.Handler(method, inputs)
	}
	return p.Result, p.Err
}

func (p *Peer) Methods() []string {
	if p.Names == nil {
		return []string{native.DefaultMethod}
	}
	return p.Names
}

func (p *Peer) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyed++
	return nil
}

// Calls returns the invocations received so far.
func (p *Peer) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Destroyed returns how many times Destroy ran.
func (p *Peer) Destroyed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}

// Backend opens Peers for paths listed in Models; any other path fails
// with OpenErr, or a not-found error when OpenErr is nil.
type Backend struct {
	ID      string
	Exts    []string
	Prio    int
	Down    bool
	Models  map[string]*Peer
	OpenErr error
}

func (b *Backend) Name() string { return b.ID }
func (b *Backend) Extensions() []string { return b.Exts }
func (b *Backend) Available() bool { return !b.Down }
func (b *Backend) Priority() int { return b.Prio }

func (b *Backend) Open(path string) (native.Peer, error) {
	if p, ok := b.Models[path]; ok {
		p.Path = path
		return p, nil
	}
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	return nil, fmt.Errorf("open %s: no such file or directory", path)
}
