package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/tmux"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List managed tmux sessions",
	RunE:  runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := tmux.NewClient(cfg.TmuxTimeout())
	sessions, err := client.ListSessions(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	count := 0
	for _, sess := range sessions {
		if !strings.HasPrefix(sess.Name, cfg.Session.Prefix) {
			continue
		}
		attached := ""
		if sess.Attached {
			attached = " (attached)"
		}
		fmt.Printf("%s\t%s%s\n", sess.Name, sess.CreatedAt.Format("2006-01-02 15:04:05"), attached)
		count++
	}
	if count == 0 {
		fmt.Println("No managed sessions")
	}
	return nil
}
