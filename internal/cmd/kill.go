package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/tmux"
)

var killCmd = &cobra.Command{
	Use:   "kill <session>",
	Short: "Kill a managed tmux session",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

func init() {
	rootCmd.AddCommand(killCmd)
}

func runKill(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := tmux.NewClient(cfg.TmuxTimeout())
	if err := client.KillSession(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to kill session %s: %w", args[0], err)
	}
	fmt.Printf("Killed session %s\n", args[0])
	return nil
}
