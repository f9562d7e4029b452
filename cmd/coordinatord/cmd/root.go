// Package cmd implements coordinatord's command-line surface: a cobra
// root command plus a serve subcommand, in the same root+subcommand
// shape as the reference platform's own CLI entrypoints.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath  string
	hostname    string
	archiveRoot string
)

var rootCmd = &cobra.Command{
	Use:   "coordinatord",
	Short: "coordinatord - job-coordination service",
	Long: `coordinatord accepts job submissions, resolves them against the
cluster/command/application catalog, enforces resource and policy
limits, and hands accepted jobs off to the local execution subsystem.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to the coordinator config file (searches common locations if not specified)")
	rootCmd.PersistentFlags().StringVar(&hostname, "hostname", "",
		"override the configured hostname stamped onto every JobRecord")
	rootCmd.PersistentFlags().StringVar(&archiveRoot, "archive-root", "",
		"override the configured archive root")

	rootCmd.AddCommand(newServeCmd())
}
