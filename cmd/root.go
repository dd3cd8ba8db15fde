package main

import (
	"github.com/gomithril/scriptmodule"
	"github.com/gomithril/scriptmodule/config"
	logging "github.com/gomithril/scriptmodule/internal/log"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	envFile  string
	logLevel string
	backend  string
}

type app struct {
	flags globalFlags
	cfg   *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "scriptmodule",
		Short:         "Load serialized models and run their entry points",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var envFiles []string
			if a.flags.envFile != "" {
				envFiles = append(envFiles, a.flags.envFile)
			}
			cfg, err := config.Load(envFiles...)
			if err != nil {
				return err
			}
			if a.flags.backend != "" {
				cfg.Backend = a.flags.backend
			}
			level := a.flags.logLevel
			if level == "" {
				level = cfg.LogLevel
			}
			logging.InitWriter(cmd.ErrOrStderr(), level)
			configureRuntime(cfg)
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.flags.envFile, "env", "", "env file to load (default .env)")
	root.PersistentFlags().StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.flags.backend, "backend", "", "backend to load models with (overrides ONNX_BACKEND)")

	root.AddCommand(
		a.newRunCmd(),
		a.newMethodsCmd(),
		a.newEmbedCmd(),
		newVersionCmd(),
	)
	return root
}

func (a *app) load(path string) (*scriptmodule.Module, error) {
	var opts []scriptmodule.Option
	if a.cfg.Backend != "" {
		opts = append(opts, scriptmodule.WithBackend(a.cfg.Backend))
	}
	return scriptmodule.Load(path, opts...)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the library version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cmd.OutOrStdout().Write([]byte(scriptmodule.Version + "\n"))
			return err
		},
	}
}
