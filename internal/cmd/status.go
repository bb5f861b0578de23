package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/protocol"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current session snapshot",
	Long:  `Query a running agentdeck daemon and display each managed session with its resolved state and associated task.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var (
	nameStyle  = lipgloss.NewStyle().Bold(true)
	stateStyle = map[string]lipgloss.Style{
		"working":          lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"needs-input":      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"ready-for-review": lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		"completed":        lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		"idle":             lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + cfg.Server.Addr + "/sessions")
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", cfg.Server.Addr, err)
	}
	defer resp.Body.Close()

	var sessions []protocol.SessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return fmt.Errorf("failed to decode session snapshot: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	for _, sess := range sessions {
		style, ok := stateStyle[sess.State]
		if !ok {
			style = dimStyle
		}
		fmt.Printf("%s  %s\n", nameStyle.Render(sess.SessionName), style.Render(sess.State))
		if sess.Task != nil {
			fmt.Printf("    task: %s %s\n", sess.Task.ID, dimStyle.Render(sess.Task.Title))
		}
		fmt.Printf("    created: %s\n", sess.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
