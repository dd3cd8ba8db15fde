package onnx

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

// Options configures the ONNX Runtime environment shared by every session
// in the process.
type Options struct {
	// LibraryPath is the onnxruntime shared library to load.
	LibraryPath string
	// IntraOpNumThreads and InterOpNumThreads are left to onnxruntime
	// when zero.
	IntraOpNumThreads int
	InterOpNumThreads int
}

// DefaultOptions reads ONNX_RUNTIME, ORT_INTRA_OP_THREADS and
// ORT_INTER_OP_THREADS from the environment.
func DefaultOptions() Options {
	intra, _ := strconv.Atoi(os.Getenv("ORT_INTRA_OP_THREADS"))
	inter, _ := strconv.Atoi(os.Getenv("ORT_INTER_OP_THREADS"))
	return Options{
		LibraryPath:       os.Getenv("ONNX_RUNTIME"),
		IntraOpNumThreads: intra,
		InterOpNumThreads: inter,
	}
}

var (
	envMu          sync.Mutex
	configured     *Options
	sessionOptions *ort.SessionOptions
	initErr        error
	initDone       bool
)

// Configure sets the options used when the environment is first
// initialized. It has no effect once Init has run.
func Configure(opts Options) {
	envMu.Lock()
	defer envMu.Unlock()
	if initDone {
		log.Warn().Msg("ONNX Runtime already initialized; ignoring new options")
		return
	}
	configured = &opts
}

func currentOptions() Options {
	if configured != nil {
		return *configured
	}
	return DefaultOptions()
}

// Init loads the shared library and creates the environment. Only the
// first call does any work; later calls return its result.
func Init() error {
	envMu.Lock()
	defer envMu.Unlock()
	if initDone {
		return initErr
	}
	initDone = true
	initErr = initEnvironment(currentOptions())
	return initErr
}

func initEnvironment(o Options) error {
	if o.LibraryPath != "" {
		ort.SetSharedLibraryPath(o.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to init ONNX env: %w", err)
	}
	if err := ort.DisableTelemetry(); err != nil {
		return errors.Join(err, ort.DestroyEnvironment())
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return errors.Join(err, ort.DestroyEnvironment())
	}
	if o.IntraOpNumThreads > 0 {
		if err := so.SetIntraOpNumThreads(o.IntraOpNumThreads); err != nil {
			return errors.Join(err, so.Destroy(), ort.DestroyEnvironment())
		}
	}
	if o.InterOpNumThreads > 0 {
		if err := so.SetInterOpNumThreads(o.InterOpNumThreads); err != nil {
			return errors.Join(err, so.Destroy(), ort.DestroyEnvironment())
		}
	}
	sessionOptions = so
	log.Info().Str("library", o.LibraryPath).Msg("ONNX Runtime initialized")
	return nil
}

// Shutdown destroys the environment. Every session must be destroyed
// first. Init may be called again afterwards.
func Shutdown() error {
	envMu.Lock()
	defer envMu.Unlock()
	if !initDone || initErr != nil {
		initDone = false
		initErr = nil
		return nil
	}
	var err error
	if sessionOptions != nil {
		err = sessionOptions.Destroy()
		sessionOptions = nil
	}
	initDone = false
	return errors.Join(err, ort.DestroyEnvironment())
}

// NewDynamicSession creates a session over the model at modelPath using
// the environment's session options.
func NewDynamicSession(modelPath string, inputs, outputs []string) (*ort.DynamicAdvancedSession, error) {
	return ort.NewDynamicAdvancedSession(
		modelPath,
		inputs,
		outputs,
		sessionOptions,
	)
}
