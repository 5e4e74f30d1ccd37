// cmd/root.go
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "relayserve",
	Short: "Batching request-processing front end for OpenAI-compatible chat backends",
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyLogLevel sets the logrus level from --log, or from LOG_LEVEL when
// the flag is not given explicitly.
func applyLogLevel() {
	name := logLevel
	if !rootCmd.PersistentFlags().Changed("log") {
		if env := os.Getenv("LOG_LEVEL"); env != "" {
			name = env
		}
	}
	level, err := logrus.ParseLevel(name)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", name)
	}
	logrus.SetLevel(level)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
}
