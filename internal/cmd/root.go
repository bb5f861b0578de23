// Package cmd contains the agentdeck command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "agentdeck",
	Short: "Real-time synchronization daemon for coding-agent sessions",
	Long: `agentdeck coordinates autonomous coding-agent processes running in
tmux sessions and keeps dashboard clients continuously synchronized with
each agent's lifecycle state, console output, and pending questions.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ~/.agentdeck/config.yaml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
