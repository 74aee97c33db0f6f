// Package commands implements the actorctl subcommands, one
// cobra.Command per verb.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// nodeID names the system under operation.
	nodeID string

	// verbose enables debug-level logging to stderr.
	verbose bool

	// outputFormat controls the run command's result rendering.
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "actorctl",
	Short: "Operate and exercise the actorsys in-process actor runtime",
	Long: `actorctl boots an actorsys system in-process and drives it
through a small built-in actor tree, for smoke-testing a runtime build
or demonstrating its messaging, supervision, and event-bus behavior
without an embedding application.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&nodeID, "node-id", "node-1",
		"Node identifier to run the system under",
	)
	rootCmd.PersistentFlags().BoolVar(
		&verbose, "verbose", false,
		"Enable debug-level logging",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
