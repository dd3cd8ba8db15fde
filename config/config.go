// Package config reads process settings from a .env file and the
// environment.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// ONNX_RUNTIME: onnxruntime shared library
	LibraryPath string `validate:"omitempty,file"`
	// ONNX_BACKEND: force a backend instead of choosing by extension
	Backend        string `validate:"omitempty,oneof=ort go wasm bundle"`
	IntraOpThreads int    `validate:"gte=0"`
	InterOpThreads int    `validate:"gte=0"`
	// MODELPATH: SentencePiece tokenizer model
	TokenizerPath string
	// MODEL_FILE: model used by the embed command
	ModelFile string
	SeqLen    int64  `validate:"gt=0"`
	EmbedDim  int64  `validate:"gt=0"`
	LogLevel  string `validate:"omitempty,oneof=debug info warn error"`
}

var validate = validator.New()

// Load reads the given .env files (".env" when none are named) into the
// environment, then builds and validates a Config from it. Missing .env
// files are not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Debug().Str("file", f).Msg("No env file")
				continue
			}
			return nil, err
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables.
func FromEnv() (*Config, error) {
	c := &Config{
		LibraryPath:   os.Getenv("ONNX_RUNTIME"),
		Backend:       os.Getenv("ONNX_BACKEND"),
		TokenizerPath: os.Getenv("MODELPATH"),
		ModelFile:     getenv("MODEL_FILE", "models/model.onnx"),
		LogLevel:      strings.ToLower(os.Getenv("LOG_LEVEL")),
	}
	var err error
	if c.IntraOpThreads, err = atoi("ORT_INTRA_OP_THREADS", 0); err != nil {
		return nil, err
	}
	if c.InterOpThreads, err = atoi("ORT_INTER_OP_THREADS", 0); err != nil {
		return nil, err
	}
	seqLen, err := atoi("EMBED_SEQ_LEN", 512)
	if err != nil {
		return nil, err
	}
	embedDim, err := atoi("EMBED_DIM", 768)
	if err != nil {
		return nil, err
	}
	c.SeqLen, c.EmbedDim = int64(seqLen), int64(embedDim)

	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	return c, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func atoi(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &InvalidValueError{Key: key, Value: v}
	}
	return n, nil
}

// InvalidValueError reports an environment variable that does not parse.
type InvalidValueError struct {
	Key   string
	Value string
}

func (e *InvalidValueError) Error() string {
	return e.Key + ": invalid value " + strconv.Quote(e.Value)
}
