package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/logging"
)

var logger *zap.Logger

var rootFlags struct {
	configPath string
}

var rootCmd = &cobra.Command{
	Use:   "inputtrace",
	Short: "Personal input activity tracker",
	Long: `inputtrace records your own keyboard and mouse activity to a durable
local log and forwards it in batches to a receiver service, which stores the
events and serves a dashboard.

The agent only runs once consent_acknowledged is set in the configuration;
this tool is for tracking your own machines, with your own consent.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv())
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.configPath, "config",
		getEnv("INPUTTRACE_CONFIG", "config.yaml"), "path to the configuration file")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
