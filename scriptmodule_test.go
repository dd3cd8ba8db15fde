package scriptmodule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	"github.com/gomithril/scriptmodule/native/nativetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubBackend(t *testing.T, models map[string]*nativetest.Peer) *nativetest.Backend {
	t.Helper()
	b := &nativetest.Backend{ID: "stub-" + t.Name(), Exts: []string{".stub"}, Models: models}
	native.Register(b)
	return b
}

func TestLoadDelegatesToBackendInstance(t *testing.T) {
	peer := &nativetest.Peer{Result: ivalue.FromLong(1)}
	b := stubBackend(t, map[string]*nativetest.Peer{"/models/a.stub": peer})

	m, err := Load("/models/a.stub", WithBackend(b.Name()))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, "/models/a.stub", peer.Path)
	assert.Equal(t, b.Name(), m.Backend())
	assert.Equal(t, "/models/a.stub", m.Path())

	_, err = m.Forward()
	require.NoError(t, err)
	assert.Len(t, peer.Calls(), 1)
}

func TestForwardPassesInputsAndResultUnchanged(t *testing.T) {
	result := ivalue.TupleFrom(ivalue.FromDouble(2.5), ivalue.FromString("out"))
	peer := &nativetest.Peer{Result: result}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	m, err := Load("m.stub", WithBackend(b.Name()))
	require.NoError(t, err)
	defer m.Close()

	tensor := ivalue.MustTensor([]int64{2}, []float32{1, 2})
	inputs := []ivalue.Value{
		ivalue.FromTensor(tensor),
		ivalue.FromLong(7),
		ivalue.None(),
		ivalue.FromLong(7),
	}

	out, err := m.Forward(inputs...)
	require.NoError(t, err)
	assert.Equal(t, result, out)

	calls := peer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, native.DefaultMethod, calls[0].Method)
	assert.Equal(t, inputs, calls[0].Inputs)
	got, err := calls[0].Inputs[0].ToTensor()
	require.NoError(t, err)
	assert.Same(t, tensor, got)
}

func TestForwardWithoutInputs(t *testing.T) {
	peer := &nativetest.Peer{}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	m, err := Load("m.stub", WithBackend(b.Name()))
	require.NoError(t, err)
	defer m.Close()

	out, err := m.Forward()
	require.NoError(t, err)
	assert.True(t, out.IsNone())
	require.Len(t, peer.Calls(), 1)
	assert.Empty(t, peer.Calls()[0].Inputs)
}

func TestRunMethodPassesNameAndInputs(t *testing.T) {
	peer := &nativetest.Peer{
		Handler: func(method string, inputs []ivalue.Value) (ivalue.Value, error) {
			return ivalue.FromString(method), nil
		},
	}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	m, err := Load("m.stub", WithBackend(b.Name()))
	require.NoError(t, err)
	defer m.Close()

	inputs := []ivalue.Value{ivalue.LongListFrom(3, 1, 2), ivalue.FromBool(true)}
	out, err := m.RunMethod("Encode Text ", inputs...)
	require.NoError(t, err)
	name, err := out.ToStr()
	require.NoError(t, err)
	assert.Equal(t, "Encode Text ", name)

	calls := peer.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Encode Text ", calls[0].Method)
	assert.Equal(t, inputs, calls[0].Inputs)
}

func TestErrorsPropagateUnaltered(t *testing.T) {
	callErr := errors.New("shape mismatch in aten::linear")
	peer := &nativetest.Peer{Err: callErr}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	m, err := Load("m.stub", WithBackend(b.Name()))
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Forward(ivalue.FromLong(1))
	assert.Same(t, callErr, err)

	_, err = m.RunMethod("missing")
	assert.Same(t, callErr, err)
}

func TestLoadFailsAtLoadTime(t *testing.T) {
	openErr := errors.New("PytorchStreamReader failed locating file constants.pkl")
	b := stubBackend(t, nil)
	b.OpenErr = openErr

	m, err := Load("/does/not/exist.stub", WithBackend(b.Name()))
	assert.Nil(t, m)
	assert.Same(t, openErr, err)
}

func TestLoadSelectsBackendByExtension(t *testing.T) {
	peer := &nativetest.Peer{}
	native.Register(&nativetest.Backend{
		ID:     "stub-by-extension",
		Exts:   []string{".byext"},
		Models: map[string]*nativetest.Peer{"model.byext": peer},
	})

	m, err := Load("model.byext")
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "stub-by-extension", m.Backend())
}

func TestLoadUnknownBackendOrFormat(t *testing.T) {
	_, err := Load("model.stub", WithBackend("no-such-backend"))
	assert.ErrorIs(t, err, native.ErrBackendNotFound)

	_, err = Load("model.nothing-claims-this")
	assert.ErrorIs(t, err, native.ErrUnsupportedFormat)
}

func TestCloseReleasesOnce(t *testing.T) {
	peer := &nativetest.Peer{}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	m, err := Load("m.stub", WithBackend(b.Name()))
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.ErrorIs(t, m.Close(), ErrClosed)
	assert.Equal(t, 1, peer.Destroyed())

	_, err = m.Forward()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.RunMethod("forward")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, peer.Calls())
}

func TestMethodsPassThrough(t *testing.T) {
	peer := &nativetest.Peer{Names: []string{"forward", "encode", "decode"}}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	m, err := Load("m.stub", WithBackend(b.Name()))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, []string{"forward", "encode", "decode"}, m.Methods())

	require.NoError(t, m.Close())
	assert.Nil(t, m.Methods())
}

type ctxKey struct{}

func TestContextPassesThroughUnchanged(t *testing.T) {
	peer := &nativetest.Peer{}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	m, err := Load("m.stub", WithBackend(b.Name()))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "request-7"))
	defer cancel()

	_, err = m.ForwardContext(ctx, ivalue.FromLong(1))
	require.NoError(t, err)
	_, err = m.RunMethodContext(ctx, "encode")
	require.NoError(t, err)

	calls := peer.Calls()
	require.Len(t, calls, 2)
	assert.Same(t, ctx, calls[0].Ctx)
	assert.Same(t, ctx, calls[1].Ctx)
	assert.Equal(t, "encode", calls[1].Method)
}

// forwardOnce loads a module and calls it without keeping the handle.
func forwardOnce(t *testing.T, backend string) ivalue.Value {
	t.Helper()
	m, err := Load("m.stub", WithBackend(backend))
	require.NoError(t, err)
	out, err := m.Forward()
	require.NoError(t, err)
	return out
}

func TestUnreferencedModuleSurvivesRunningCall(t *testing.T) {
	peer := &nativetest.Peer{}
	peer.Handler = func(string, []ivalue.Value) (ivalue.Value, error) {
		for i := 0; i < 5; i++ {
			runtime.GC()
			time.Sleep(5 * time.Millisecond)
		}
		return ivalue.FromLong(int64(peer.Destroyed())), nil
	}
	b := stubBackend(t, map[string]*nativetest.Peer{"m.stub": peer})

	out := forwardOnce(t, b.Name())
	assert.Equal(t, ivalue.FromLong(0), out, "model released while its call was running")

	assert.Eventually(t, func() bool {
		runtime.GC()
		return peer.Destroyed() == 1
	}, 5*time.Second, 10*time.Millisecond, "finalizer should release an unclosed module")
}

func TestLoadWasmModule(t *testing.T) {
	m, err := Load("wasm/testdata/arith.wasm")
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "wasm", m.Backend())

	out, err := m.Forward(ivalue.FromLong(2), ivalue.FromLong(3))
	require.NoError(t, err)
	assert.Equal(t, ivalue.FromLong(5), out)

	out, err = m.RunMethod("mul", ivalue.FromLong(2), ivalue.FromLong(3))
	require.NoError(t, err)
	assert.Equal(t, ivalue.FromLong(6), out)

	_, err = m.RunMethod("div", ivalue.FromLong(2), ivalue.FromLong(3))
	assert.ErrorIs(t, err, native.ErrMethodNotFound)
}

func TestLoadBundleOfWasmModules(t *testing.T) {
	arith, err := filepath.Abs("wasm/testdata/arith.wasm")
	require.NoError(t, err)
	manifest := filepath.Join(t.TempDir(), "module.yml")
	require.NoError(t, os.WriteFile(manifest, []byte("name: arith\nmethods:\n  forward: "+arith+"\n  twice: "+arith+"\n"), 0o644))

	m, err := Load(manifest)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, "bundle", m.Backend())
	assert.Equal(t, []string{"forward", "twice"}, m.Methods())

	out, err := m.RunMethod("twice", ivalue.FromLong(20), ivalue.FromLong(22))
	require.NoError(t, err)
	assert.Equal(t, ivalue.FromLong(42), out)
}

func TestLoadMissingWasmFile(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "absent.wasm"))
	assert.Nil(t, m)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
