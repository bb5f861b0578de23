package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Server.Addr != "127.0.0.1:8791" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Session.Prefix != "agentdeck-" {
		t.Errorf("Session.Prefix = %q", cfg.Session.Prefix)
	}
	if cfg.Session.ProvisionalSuffix != "-pending" {
		t.Errorf("Session.ProvisionalSuffix = %q", cfg.Session.ProvisionalSuffix)
	}
	if cfg.PollInterval() != 2*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
	if cfg.OutputDebounce() != 250*time.Millisecond {
		t.Errorf("OutputDebounce = %v", cfg.OutputDebounce())
	}
	if cfg.SignalDebounce() != 50*time.Millisecond {
		t.Errorf("SignalDebounce = %v", cfg.SignalDebounce())
	}
	if cfg.Poll.CaptureLines != 200 {
		t.Errorf("Poll.CaptureLines = %d", cfg.Poll.CaptureLines)
	}
	if cfg.Signals.StateTTLSeconds != 30 {
		t.Errorf("Signals.StateTTLSeconds = %d", cfg.Signals.StateTTLSeconds)
	}
	if cfg.Signals.CompleteTTLSeconds != 86400 {
		t.Errorf("Signals.CompleteTTLSeconds = %d", cfg.Signals.CompleteTTLSeconds)
	}
	if len(cfg.Markers.Working) == 0 || len(cfg.Markers.NeedsInput) == 0 {
		t.Error("default marker tables should be populated")
	}
}

func TestPathDefaultsDerivedFromDataDir(t *testing.T) {
	cfg := &Config{}
	cfg.Paths.DataDir = "/srv/agentdeck"
	cfg.applyPathDefaults()

	if cfg.Paths.SignalsDir != filepath.Join("/srv/agentdeck", "signals") {
		t.Errorf("SignalsDir = %q", cfg.Paths.SignalsDir)
	}
	if cfg.Paths.CompletionsDir != filepath.Join("/srv/agentdeck", "completions") {
		t.Errorf("CompletionsDir = %q", cfg.Paths.CompletionsDir)
	}
	if cfg.Paths.TasksFile != filepath.Join("/srv/agentdeck", "tasks.json") {
		t.Errorf("TasksFile = %q", cfg.Paths.TasksFile)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: "0.0.0.0:9000"
poll:
  interval_ms: 500
markers:
  needs_input:
    - "[INPUT REQUIRED]"
paths:
  data_dir: ` + dir + `
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.PollInterval() != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval())
	}
	// Overridden marker table replaces the default.
	if len(cfg.Markers.NeedsInput) != 1 || cfg.Markers.NeedsInput[0] != "[INPUT REQUIRED]" {
		t.Errorf("Markers.NeedsInput = %v", cfg.Markers.NeedsInput)
	}
	// Untouched sections keep their defaults.
	if cfg.Session.Prefix != "agentdeck-" {
		t.Errorf("Session.Prefix = %q", cfg.Session.Prefix)
	}
	if cfg.Paths.SignalsDir != filepath.Join(dir, "signals") {
		t.Errorf("SignalsDir = %q", cfg.Paths.SignalsDir)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("an explicitly named missing config file should be an error")
	}
}
