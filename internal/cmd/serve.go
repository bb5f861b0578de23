package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/engine"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/persist"
	"github.com/agentdeck/agentdeck/internal/server"
	"github.com/agentdeck/agentdeck/internal/task"
	"github.com/agentdeck/agentdeck/internal/tmux"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synchronization daemon",
	Long: `Start the agentdeck daemon: discover managed tmux sessions, watch
signal documents, and stream session events to connected dashboards.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	tmuxClient := tmux.NewClient(cfg.TmuxTimeout())
	completions := persist.NewStore(cfg.Paths.CompletionsDir)
	recorder := persist.NewRecorder(completions, log.WithComponent("persister"))
	tasks := task.NewFileStore(cfg.Paths.TasksFile)

	h := hub.New(log.WithComponent("hub"))
	eng := engine.New(cfg, log, tmuxClient, h, tasks, recorder)
	defer eng.Stop()

	srv := server.New(cfg, log, h, eng, tmuxClient, completions)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.ListenAndServe(ctx)
}
