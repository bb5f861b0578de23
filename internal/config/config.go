// Package config loads agentdeck configuration from file, environment,
// and built-in defaults via viper.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete agentdeck configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
	Poll    PollConfig    `mapstructure:"poll"`
	Signals SignalsConfig `mapstructure:"signals"`
	Markers MarkersConfig `mapstructure:"markers"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the client-facing transport endpoint.
type ServerConfig struct {
	// Addr is the listen address for the websocket/REST server.
	Addr string `mapstructure:"addr"`
	// PingIntervalSeconds is how often each client is pinged.
	PingIntervalSeconds int `mapstructure:"ping_interval_seconds"`
	// PongTimeoutSeconds is how long a client may go without acknowledging
	// a ping before it is forcibly disconnected.
	PongTimeoutSeconds int `mapstructure:"pong_timeout_seconds"`
	// SendBufferSize is the per-client outbound message buffer.
	SendBufferSize int `mapstructure:"send_buffer_size"`
}

// SessionConfig controls which tmux sessions are managed.
type SessionConfig struct {
	// Prefix selects the managed naming convention (default: "agentdeck-").
	Prefix string `mapstructure:"prefix"`
	// ProvisionalSuffix marks sessions that are created but not yet
	// registered; these are excluded from discovery.
	ProvisionalSuffix string `mapstructure:"provisional_suffix"`
}

// PollConfig controls the slow-path poll loop and output capture.
type PollConfig struct {
	// IntervalMs is the poll tick period in milliseconds.
	IntervalMs int `mapstructure:"interval_ms"`
	// CaptureLines bounds the terminal buffer tail captured per session.
	CaptureLines int `mapstructure:"capture_lines"`
	// OutputDebounceMs collapses rapid output bursts before broadcasting.
	OutputDebounceMs int `mapstructure:"output_debounce_ms"`
	// SignalDebounceMs collapses rapid successive signal-file writes.
	SignalDebounceMs int `mapstructure:"signal_debounce_ms"`
	// TmuxTimeoutMs bounds each external tmux subprocess call.
	TmuxTimeoutMs int `mapstructure:"tmux_timeout_ms"`
	// ShortOutputLines is the non-empty line count below which a session
	// with no task and no markers is considered still starting.
	ShortOutputLines int `mapstructure:"short_output_lines"`
}

// SignalsConfig controls freshness rules for agent-written documents.
type SignalsConfig struct {
	// StateTTLSeconds applies to state-kind signals (volatile).
	StateTTLSeconds int `mapstructure:"state_ttl_seconds"`
	// QuestionTTLSeconds applies to question documents.
	QuestionTTLSeconds int `mapstructure:"question_ttl_seconds"`
	// DataTTLSeconds applies to tasks/action data-kind signals.
	DataTTLSeconds int `mapstructure:"data_ttl_seconds"`
	// CompleteTTLSeconds applies to complete bundles (must survive until
	// a human acts on them).
	CompleteTTLSeconds int `mapstructure:"complete_ttl_seconds"`
}

// MarkersConfig is the heuristic marker table used when no signal is present.
// The exact strings are an external contract with the agent CLI and may
// drift between versions, so they are configuration, not constants.
type MarkersConfig struct {
	Working    []string `mapstructure:"working"`
	NeedsInput []string `mapstructure:"needs_input"`
	Review     []string `mapstructure:"review"`
	Completing []string `mapstructure:"completing"`
	Compacting []string `mapstructure:"compacting"`
	Completed  []string `mapstructure:"completed"`
	Idle       []string `mapstructure:"idle"`
}

// PathsConfig controls where agentdeck reads and writes its documents.
type PathsConfig struct {
	// DataDir is the base directory (default: ~/.agentdeck).
	DataDir string `mapstructure:"data_dir"`
	// SignalsDir holds the per-session signal and question documents.
	// Defaults to {data_dir}/signals.
	SignalsDir string `mapstructure:"signals_dir"`
	// CompletionsDir holds durable completion bundles, outside the
	// ephemeral signal namespace. Defaults to {data_dir}/completions.
	CompletionsDir string `mapstructure:"completions_dir"`
	// TasksFile is the read-only in-progress task export consulted for
	// session/task association. Defaults to {data_dir}/tasks.json.
	TasksFile string `mapstructure:"tasks_file"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
	// Dir is where agentdeck.log is written; empty means stderr.
	Dir string `mapstructure:"dir"`
}

// Load reads configuration from the given file (optional), the environment,
// and defaults. Environment variables use the AGENTDECK prefix, e.g.
// AGENTDECK_SERVER_ADDR.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agentdeck"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyPathDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration without consulting any file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	cfg.applyPathDefaults()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8791")
	v.SetDefault("server.ping_interval_seconds", 30)
	v.SetDefault("server.pong_timeout_seconds", 60)
	v.SetDefault("server.send_buffer_size", 256)

	v.SetDefault("session.prefix", "agentdeck-")
	v.SetDefault("session.provisional_suffix", "-pending")

	v.SetDefault("poll.interval_ms", 2000)
	v.SetDefault("poll.capture_lines", 200)
	v.SetDefault("poll.output_debounce_ms", 250)
	v.SetDefault("poll.signal_debounce_ms", 50)
	v.SetDefault("poll.tmux_timeout_ms", 5000)
	v.SetDefault("poll.short_output_lines", 5)

	v.SetDefault("signals.state_ttl_seconds", 30)
	v.SetDefault("signals.question_ttl_seconds", 300)
	v.SetDefault("signals.data_ttl_seconds", 600)
	v.SetDefault("signals.complete_ttl_seconds", 86400)

	v.SetDefault("markers.working", []string{"esc to interrupt", "Thinking…", "Working…"})
	v.SetDefault("markers.needs_input", []string{"Do you want to proceed?", "❯ 1.", "waiting for your input"})
	v.SetDefault("markers.review", []string{"ready for review", "Review the changes"})
	v.SetDefault("markers.completing", []string{"Finishing up", "Wrapping up"})
	v.SetDefault("markers.compacting", []string{"Compacting conversation"})
	v.SetDefault("markers.completed", []string{"Task complete", "All done"})
	v.SetDefault("markers.idle", []string{})

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.dir", "")
}

// applyPathDefaults fills in derived paths that depend on data_dir.
func (c *Config) applyPathDefaults() {
	if c.Paths.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Paths.DataDir = filepath.Join(home, ".agentdeck")
	}
	if c.Paths.SignalsDir == "" {
		c.Paths.SignalsDir = filepath.Join(c.Paths.DataDir, "signals")
	}
	if c.Paths.CompletionsDir == "" {
		c.Paths.CompletionsDir = filepath.Join(c.Paths.DataDir, "completions")
	}
	if c.Paths.TasksFile == "" {
		c.Paths.TasksFile = filepath.Join(c.Paths.DataDir, "tasks.json")
	}
}

// PollInterval returns the poll tick period as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// OutputDebounce returns the per-session output debounce delay.
func (c *Config) OutputDebounce() time.Duration {
	return time.Duration(c.Poll.OutputDebounceMs) * time.Millisecond
}

// SignalDebounce returns the per-document signal debounce delay.
func (c *Config) SignalDebounce() time.Duration {
	return time.Duration(c.Poll.SignalDebounceMs) * time.Millisecond
}

// TmuxTimeout returns the bound applied to each tmux subprocess call.
func (c *Config) TmuxTimeout() time.Duration {
	return time.Duration(c.Poll.TmuxTimeoutMs) * time.Millisecond
}
