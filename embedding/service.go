package embedding

import (
	"fmt"

	"github.com/gomithril/scriptmodule"
	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds embedding service configuration
type Config struct {
	ModelPath string
	Backend   string
	SeqLen    int64
	EmbedDim  int64
}

// DefaultConfig returns default embedding configuration
func DefaultConfig() *Config {
	return &Config{
		ModelPath: "models/model.onnx",
		SeqLen:    512,
		EmbedDim:  768,
	}
}

// Forwarder runs a model's default entry point. *scriptmodule.Module
// implements it.
type Forwarder interface {
	Forward(inputs ...ivalue.Value) (ivalue.Value, error)
}

// Service handles embedding operations
type Service struct {
	config *Config
	model  Forwarder
	owned  *scriptmodule.Module
}

// NewService loads the model named by config and creates a service over it
func NewService(config *Config) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var opts []scriptmodule.Option
	if config.Backend != "" {
		opts = append(opts, scriptmodule.WithBackend(config.Backend))
	}
	m, err := scriptmodule.Load(config.ModelPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model: %w", err)
	}
	log.Info().Str("model", config.ModelPath).Str("backend", m.Backend()).Msg("Embedding model loaded")

	return &Service{config: config, model: m, owned: m}, nil
}

// NewServiceWithModel creates a service over an already loaded model.
// The caller keeps ownership of model.
func NewServiceWithModel(config *Config, model Forwarder) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	return &Service{config: config, model: model}
}

func (s *Service) Close() error {
	if s.owned != nil {
		return s.owned.Close()
	}
	return nil
}

// prepareBatchInputs pads every sequence to SeqLen and builds the
// input_ids and attention_mask tensors
func (s *Service) prepareBatchInputs(batch [][]int64) ([]ivalue.Value, error) {
	batchSize := int64(len(batch))
	seqLen := s.config.SeqLen

	paddedIds := make([]int64, batchSize*seqLen)
	attMask := make([]int64, batchSize*seqLen)

	for b, ids := range batch {
		for i := 0; i < int(seqLen) && i < len(ids); i++ {
			paddedIds[b*int(seqLen)+i] = ids[i]
			attMask[b*int(seqLen)+i] = 1 // mark actual tokens
		}
	}

	inputIds, err := ivalue.NewTensor([]int64{batchSize, seqLen}, paddedIds)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	mask, err := ivalue.NewTensor([]int64{batchSize, seqLen}, attMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	return []ivalue.Value{ivalue.FromTensor(inputIds), ivalue.FromTensor(mask)}, nil
}

// sentenceEmbeddings extracts the pooled output: the last element when the
// model returns (token_embeddings, sentence_embedding), else the tensor.
func (s *Service) sentenceEmbeddings(out ivalue.Value, batchSize int) ([][]float32, error) {
	if out.IsTuple() {
		elems, _ := out.ToTuple()
		if len(elems) == 0 {
			return nil, fmt.Errorf("model returned an empty tuple")
		}
		out = elems[len(elems)-1]
	}
	tensor, err := out.ToTensor()
	if err != nil {
		return nil, fmt.Errorf("failed to read sentence embedding: %w", err)
	}
	allEmbeds, err := tensor.Float32s()
	if err != nil {
		return nil, fmt.Errorf("failed to read sentence embedding: %w", err)
	}

	embedDim := int(s.config.EmbedDim)
	if len(allEmbeds) != batchSize*embedDim {
		return nil, fmt.Errorf("sentence embedding has %d values, want %d x %d", len(allEmbeds), batchSize, embedDim)
	}
	results := make([][]float32, batchSize)
	for b := 0; b < batchSize; b++ {
		start := b * embedDim
		results[b] = allEmbeds[start : start+embedDim]
	}
	return results, nil
}

// Generate creates embeddings for the given token IDs
func (s *Service) Generate(ids []int64) ([]float32, error) {
	embeds, err := s.GenerateBatch([][]int64{ids})
	if err != nil {
		return nil, err
	}
	return embeds[0], nil
}

// GenerateBatch processes multiple sequences at once
func (s *Service) GenerateBatch(batch [][]int64) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	inputs, err := s.prepareBatchInputs(batch)
	if err != nil {
		return nil, err
	}

	out, err := s.model.Forward(inputs...)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return s.sentenceEmbeddings(out, len(batch))
}

func (s *Service) ChunkText(ids []int64) [][]int64 {
	if s.config.SeqLen <= 0 {
		log.Warn().Int64("seq_len", s.config.SeqLen).Msg("Sequence length is not positive; not chunking")
		if len(ids) == 0 {
			return nil
		}
		return [][]int64{ids}
	}
	var chunks [][]int64
	for i := 0; i < len(ids); i += int(s.config.SeqLen) {
		end := min(i+int(s.config.SeqLen), len(ids))
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

// GenerateBatchConcurrently splits chunks into batches of batchSize and
// runs them in parallel; results keep the order of chunks
func (s *Service) GenerateBatchConcurrently(batchChunks [][]int64, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	numChunks := len(batchChunks)
	results := make([][]float32, numChunks)

	var g errgroup.Group
	for i := 0; i < numChunks; i += batchSize {
		start, end := i, min(i+batchSize, numChunks)
		g.Go(func() error {
			log.Info().Msgf("Worker started for chunks %d to %d", start, end-1)
			embeds, err := s.GenerateBatch(batchChunks[start:end])
			if err != nil {
				log.Error().Err(err).Msgf("Inference failed for batch %d-%d", start, end-1)
				return err
			}
			copy(results[start:end], embeds)
			log.Info().Msgf("Completed inference for batch %d-%d", start, end-1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Info().Msg("All batches processed successfully")
	return results, nil
}
