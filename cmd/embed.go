package main

import (
	"fmt"
	"os"

	"github.com/gomithril/scriptmodule/codec"
	"github.com/gomithril/scriptmodule/embedding"
	"github.com/spf13/cobra"
)

func (a *app) newEmbedCmd() *cobra.Command {
	var (
		inputFile string
		batchSize int
	)
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed a text file in SeqLen chunks and print the embedding count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(inputFile)
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}

			textCodec, err := codec.NewCodec(a.cfg.TokenizerPath)
			if err != nil {
				return fmt.Errorf("failed to initialize text codec: %w", err)
			}
			ids := textCodec.Encode(string(data))

			svc, err := embedding.NewService(&embedding.Config{
				ModelPath: a.cfg.ModelFile,
				Backend:   a.cfg.Backend,
				SeqLen:    a.cfg.SeqLen,
				EmbedDim:  a.cfg.EmbedDim,
			})
			if err != nil {
				return err
			}
			defer svc.Close()

			chunkedIds := svc.ChunkText(ids)
			embeddings, err := svc.GenerateBatchConcurrently(chunkedIds, batchSize)
			if err != nil {
				return fmt.Errorf("unable to generate embeddings: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), len(embeddings))
			return err
		},
	}
	cmd.Flags().StringVarP(&inputFile, "file", "f", "input.txt", "text file to embed")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 8, "chunks per inference call")
	return cmd
}
