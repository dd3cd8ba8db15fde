package main

import (
	"fmt"
	"strings"

	"github.com/gomithril/scriptmodule/codec"
	"github.com/gomithril/scriptmodule/ivalue"
	"github.com/gomithril/scriptmodule/native"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func (a *app) newRunCmd() *cobra.Command {
	var (
		method string
		inputs []string
		texts  []string
	)
	cmd := &cobra.Command{
		Use:   "run <model>",
		Short: "Run an entry point and print its result as JSON",
		Long: `Run an entry point of a model and print the result as JSON.

Each --input is one JSON-encoded value, for example
  --input '{"type":"long","value":3}'
  --input '{"type":"tensor","value":{"dtype":"float32","shape":[1,2],"data":[0.5,1]}}'
Each --text is tokenized with the SentencePiece model at MODELPATH into a
[1, n] int64 tensor. Arguments are passed in flag order, inputs first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make([]ivalue.Value, 0, len(inputs)+len(texts))
			for i, raw := range inputs {
				var v ivalue.Value
				if err := json.Unmarshal([]byte(raw), &v); err != nil {
					return fmt.Errorf("failed to parse input %d: %w", i, err)
				}
				values = append(values, v)
			}
			if len(texts) > 0 {
				c, err := codec.NewCodec(a.cfg.TokenizerPath)
				if err != nil {
					return err
				}
				for _, text := range texts {
					values = append(values, c.EncodeValue(text))
				}
			}

			m, err := a.load(args[0])
			if err != nil {
				return err
			}
			defer m.Close()

			var out ivalue.Value
			if method == native.DefaultMethod {
				out, err = m.ForwardContext(cmd.Context(), values...)
			} else {
				out, err = m.RunMethodContext(cmd.Context(), method, values...)
			}
			if err != nil {
				return err
			}

			b, err := json.Marshal(out)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", native.DefaultMethod, "entry point to run")
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "JSON-encoded argument (repeatable)")
	cmd.Flags().StringArrayVarP(&texts, "text", "t", nil, "text argument tokenized to an int64 tensor (repeatable)")
	return cmd
}

func (a *app) newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods <model>",
		Short: "List the entry points of a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.load(args[0])
			if err != nil {
				return err
			}
			defer m.Close()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n%s\n", m.Path(), m.Backend(), strings.Join(m.Methods(), "\n"))
			return err
		},
	}
}
