// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/katalvlaran/scalebp/internal/logging"
)

var (
	modelPath   string
	logLevel    string
	emitTrace   bool
	emitMetrics bool

	logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "scalebp",
	Short:         "Exact inference and model evidence on chain factor graphs",
	Long:          `scalebp runs scaled message passing on linear-Gaussian state-space models and hidden Markov models, reporting marginals and the log model evidence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		lvl, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger = logging.NewWriter(cmd.ErrOrStderr(), lvl)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "model.yaml", "YAML model file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&emitTrace, "trace", false, "Print sweep spans to stderr")
	rootCmd.PersistentFlags().BoolVar(&emitMetrics, "metrics", false, "Print scalebp_* metrics to stderr after the run")
}
