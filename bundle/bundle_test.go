package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/gomithril/scriptmodule/native/nativetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "module.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestManifestShorthandAndLongForm(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
name: encoder
methods:
  forward: encoder.onnx
  score:
    file: /opt/models/scorer.wasm
    backend: wasm
`)

	m, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "encoder", m.Name)
	assert.Equal(t, MethodSpec{File: "encoder.onnx"}, m.Methods["forward"])
	assert.Equal(t, MethodSpec{File: "/opt/models/scorer.wasm", Backend: "wasm"}, m.Methods["score"])
}

func TestManifestRequiresForward(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "methods:\n  score: scorer.wasm\n")

	_, err := ReadManifest(path)
	assert.ErrorContains(t, err, "no forward method")
}

func TestManifestRejectsEmptyFile(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "methods:\n  forward:\n    backend: go\n")

	_, err := ReadManifest(path)
	assert.ErrorContains(t, err, "has no file")
}

func TestOpenDispatchesMethods(t *testing.T) {
	dir := t.TempDir()
	encoder := &nativetest.Peer{Result: ivalue.FromString("encoded")}
	scorer := &nativetest.Peer{Result: ivalue.FromDouble(0.75)}
	native.Register(&nativetest.Backend{
		ID:   "bundle-stub",
		Exts: []string{".bstub"},
		Models: map[string]*nativetest.Peer{
			filepath.Join(dir, "encoder.bstub"): encoder,
			filepath.Join(dir, "scorer.bstub"):  scorer,
		},
	})
	path := writeManifest(t, dir, `
name: pair
methods:
  forward: encoder.bstub
  score:
    file: scorer.bstub
    backend: bundle-stub
`)

	peer, err := (&Backend{}).Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"forward", "score"}, peer.Methods())

	ctx := context.Background()
	out, err := peer.Forward(ctx, ivalue.FromLong(1))
	require.NoError(t, err)
	assert.Equal(t, ivalue.FromString("encoded"), out)

	out, err = peer.RunMethod(ctx, "score", ivalue.FromLong(2), ivalue.FromLong(3))
	require.NoError(t, err)
	assert.Equal(t, ivalue.FromDouble(0.75), out)
	require.Len(t, scorer.Calls(), 1)
	assert.Equal(t, native.DefaultMethod, scorer.Calls()[0].Method)
	assert.Equal(t, []ivalue.Value{ivalue.FromLong(2), ivalue.FromLong(3)}, scorer.Calls()[0].Inputs)

	_, err = peer.RunMethod(ctx, "decode")
	assert.ErrorIs(t, err, native.ErrMethodNotFound)

	require.NoError(t, peer.Destroy())
	assert.Equal(t, 1, encoder.Destroyed())
	assert.Equal(t, 1, scorer.Destroyed())
}

func TestOpenReleasesOnFailure(t *testing.T) {
	dir := t.TempDir()
	good := &nativetest.Peer{}
	openErr := errors.New("bad graph")
	native.Register(&nativetest.Backend{
		ID:      "bundle-partial",
		Exts:    []string{".pstub"},
		Models:  map[string]*nativetest.Peer{filepath.Join(dir, "good.pstub"): good},
		OpenErr: openErr,
	})
	path := writeManifest(t, dir, `
methods:
  forward: good.pstub
  broken: broken.pstub
  another: good.pstub
`)

	peer, err := (&Backend{}).Open(path)
	assert.Nil(t, peer)
	assert.ErrorIs(t, err, openErr)
}

func TestOpenUnclaimedFile(t *testing.T) {
	path := writeManifest(t, t.TempDir(), "methods:\n  forward: weights.nope\n")

	peer, err := (&Backend{}).Open(path)
	assert.Nil(t, peer)
	assert.ErrorIs(t, err, native.ErrUnsupportedFormat)
}

func TestOpenRejectsSelfReference(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("methods:\n  forward: ./loop.yaml\n"), 0o644))

	peer, err := (&Backend{}).Open(path)
	assert.Nil(t, peer)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestOpenRejectsMutualReference(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("methods:\n  forward: b.yml\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte("methods:\n  forward: c.data\n  back:\n    file: a.yaml\n    backend: bundle\n"), 0o644))
	native.Register(&nativetest.Backend{
		ID:     "bundle-cycle-leaf",
		Exts:   []string{".data"},
		Models: map[string]*nativetest.Peer{filepath.Join(dir, "c.data"): {}},
	})

	peer, err := (&Backend{}).Open(filepath.Join(dir, "a.yaml"))
	assert.Nil(t, peer)
	assert.ErrorIs(t, err, ErrCycle)
	assert.ErrorContains(t, err, "a.yaml -> ")
}

func TestOpenSharedNestedBundle(t *testing.T) {
	dir := t.TempDir()
	leaf := &nativetest.Peer{Result: ivalue.FromLong(3)}
	native.Register(&nativetest.Backend{
		ID:     "bundle-shared-leaf",
		Exts:   []string{".shared"},
		Models: map[string]*nativetest.Peer{filepath.Join(dir, "leaf.shared"): leaf},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "inner.yaml"), []byte("methods:\n  forward: leaf.shared\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "outer.yaml"), []byte("methods:\n  forward: inner.yaml\n  again: inner.yaml\n"), 0o644))

	peer, err := (&Backend{}).Open(filepath.Join(dir, "outer.yaml"))
	require.NoError(t, err)
	defer peer.Destroy()

	out, err := peer.RunMethod(context.Background(), "again")
	require.NoError(t, err)
	assert.Equal(t, ivalue.FromLong(3), out)
}
