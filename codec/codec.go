package codec

import (
	"fmt"
	"os"
	"sync"

	"github.com/eliben/go-sentencepiece"
	"github.com/gomithril/scriptmodule/ivalue"
)

var (
	mu    sync.Mutex
	procs = map[string]*sentencepiece.Processor{}
)

// NewProcessor loads the SentencePiece model at modelPath, once per path.
func NewProcessor(modelPath string) (*sentencepiece.Processor, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path is empty")
	}

	mu.Lock()
	defer mu.Unlock()
	if proc, ok := procs[modelPath]; ok {
		return proc, nil
	}

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found at %s", modelPath)
	}

	proc, err := sentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, err
	}
	procs[modelPath] = proc
	return proc, nil
}

type Codec struct {
	processor *sentencepiece.Processor
}

// NewCodec loads the tokenizer at protoFile; an empty path falls back to
// the MODELPATH environment variable.
func NewCodec(protoFile string) (*Codec, error) {
	if protoFile == "" {
		protoFile = os.Getenv("MODELPATH")
	}
	proc, err := NewProcessor(protoFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load SentencePiece processor: %w", err)
	}

	return &Codec{processor: proc}, nil
}

func (c *Codec) Encode(text string) []int64 {
	tokens := c.processor.Encode(text)

	ids := make([]int64, len(tokens))
	for i, token := range tokens {
		ids[i] = int64(token.ID)
	}
	return ids
}

// EncodeValue tokenizes text into a [1, n] int64 tensor value.
func (c *Codec) EncodeValue(text string) ivalue.Value {
	ids := c.Encode(text)
	return ivalue.FromTensor(ivalue.MustTensor([]int64{1, int64(len(ids))}, ids))
}

func (c *Codec) Decode(ids []int64) string {
	ints := make([]int, len(ids))
	for i, id := range ids {
		ints[i] = int(id)
	}
	return c.processor.Decode(ints)
}
