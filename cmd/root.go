// Package cmd implements the dispatch core's command-line surface: a
// cobra root command plus `run` and `info` subcommands, persistent flags
// for config path and log level, and a Fatalf-on-config-error top level.
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Reconfigurable-accelerator kernel dispatch core",
}

// Execute runs the root command, exiting 1 on any returned error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the dispatch core YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(infoCmd)
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level %q", logLevel)
	}
	logrus.SetLevel(level)
}
