package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stochago/umda/internal/logging"
)

var (
	logLevel  string
	logFormat string
	logger    *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "umdacli",
	Short: "Univariate marginal distribution algorithm runner",
	Long: `umdacli runs the UMDA estimation-of-distribution optimizer against
named benchmark objectives from the command line.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(&logging.Config{
			Level:  logLevel,
			Format: logFormat,
			Output: "stderr",
		})
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format (json, console)")
}
