package worker

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/voxkit-labs/voxkit-ai/src/logger"
)

// Version of the worker framework
const Version = "0.1.0"

// RunCLI parses command line arguments and runs the worker with the given
// entrypoint. It is meant to be the only thing a worker binary's main
// function calls; the worker starts only when the binary is executed
// directly, never on import.
func RunCLI(entrypoint JobHandler) {
	root := newRootCommand(entrypoint)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand(entrypoint JobHandler) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "voxkit-worker",
		Short:         "Voice agent worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	start := &cobra.Command{
		Use:   "start",
		Short: "Register with the dispatcher and serve jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Init()
			defer logger.Sync()

			cfg, err := loadCLIConfig(configPath)
			if err != nil {
				return err
			}

			w, err := NewWorker(Options{
				Config:     cfg,
				Entrypoint: entrypoint,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return w.Run(ctx)
		},
	}
	start.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the worker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}

	root.AddCommand(start, version)
	return root
}

func loadCLIConfig(path string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}
	return ConfigFromEnv()
}
