package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCmd_LogFlag_DefaultsToInfo(t *testing.T) {
	// GIVEN the root command with its registered persistent flags
	flag := rootCmd.PersistentFlags().Lookup("log")

	// THEN the default log level is info
	require.NotNil(t, flag)
	require.Equal(t, "info", flag.DefValue)
}

func TestServeCmd_RegisteredUnderRoot(t *testing.T) {
	// GIVEN the root command
	// THEN serve, plan, and spawn are all registered subcommands
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Use] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["plan"])
	require.True(t, names["spawn"])
}

func TestPlanCmd_TotalLayersFlag_DefaultsToThirtyTwo(t *testing.T) {
	// GIVEN the plan command's registered flags
	flag := planCmd.Flags().Lookup("total-layers")

	// THEN the default matches the configured total-layer count
	require.NotNil(t, flag)
	require.Equal(t, "32", flag.DefValue)
}

func TestApplyLogLevel_ValidLevel_DoesNotPanic(t *testing.T) {
	// GIVEN a valid log level
	logLevel = "debug"

	// WHEN applying it
	// THEN it does not panic
	require.NotPanics(t, func() { applyLogLevel() })
}
