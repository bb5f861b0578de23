// Package tmux is the process-host boundary for agentdeck.
//
// The daemon treats the terminal multiplexer as a black box exposing five
// verbs: list sessions, capture a pane, send keys, send a special key, and
// kill a session. Every call shells out to the tmux binary with a bounded
// timeout so a hung tmux server cannot stall the sync loop.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrSessionNotFound is returned when a verb targets a session that does
// not exist (or the tmux server is not running).
var ErrSessionNotFound = errors.New("tmux session not found")

// SessionInfo describes one live tmux session as reported by list-sessions.
type SessionInfo struct {
	Name      string
	CreatedAt time.Time
	Attached  bool
}

// Client runs tmux commands with a per-call timeout.
// The zero value is not usable; construct with NewClient.
type Client struct {
	timeout time.Duration
}

// NewClient creates a tmux client. Each subprocess call is bounded by
// timeout; zero or negative falls back to 5 seconds.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{timeout: timeout}
}

// command builds a context-bounded tmux exec.Cmd.
func (c *Client) command(ctx context.Context, args ...string) (*exec.Cmd, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	return exec.CommandContext(ctx, "tmux", args...), cancel
}

// ListSessions returns all current tmux sessions.
// A tmux server that is not running is reported as zero sessions, not an
// error: the next agent launch will start one.
func (c *Client) ListSessions(ctx context.Context) ([]SessionInfo, error) {
	cmd, cancel := c.command(ctx,
		"list-sessions",
		"-F", "#{session_name}\t#{session_created}\t#{session_attached}",
	)
	defer cancel()

	out, err := cmd.Output()
	if err != nil {
		if isNoServerError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("tmux list-sessions: %w", err)
	}

	return parseSessionList(string(out)), nil
}

// parseSessionList parses list-sessions output in the name/created/attached
// tab-separated format. Unparseable lines are skipped.
func parseSessionList(out string) []SessionInfo {
	var sessions []SessionInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		info := SessionInfo{Name: parts[0]}
		if epoch, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
			info.CreatedAt = time.Unix(epoch, 0)
		}
		info.Attached = parts[2] != "0"
		sessions = append(sessions, info)
	}
	return sessions
}

// CapturePane returns the last lines of a session's terminal buffer,
// including scrollback, as raw text with escape sequences intact.
func (c *Client) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	cmd, cancel := c.command(ctx,
		"capture-pane",
		"-p",
		"-t", name,
		"-S", fmt.Sprintf("-%d", lines),
	)
	defer cancel()

	out, err := cmd.Output()
	if err != nil {
		return "", c.wrapSessionError("capture-pane", name, err)
	}
	return string(out), nil
}

// SendKeys types literal text into the session followed by Enter.
func (c *Client) SendKeys(ctx context.Context, name, text string) error {
	cmd, cancel := c.command(ctx, "send-keys", "-t", name, "-l", text)
	defer cancel()
	if err := cmd.Run(); err != nil {
		return c.wrapSessionError("send-keys", name, err)
	}

	enter, cancelEnter := c.command(ctx, "send-keys", "-t", name, "Enter")
	defer cancelEnter()
	if err := enter.Run(); err != nil {
		return c.wrapSessionError("send-keys", name, err)
	}
	return nil
}

// SendKey sends a single special key (e.g. "Enter", "Escape", "C-c")
// without appending Enter.
func (c *Client) SendKey(ctx context.Context, name, key string) error {
	cmd, cancel := c.command(ctx, "send-keys", "-t", name, MapKey(key))
	defer cancel()
	if err := cmd.Run(); err != nil {
		return c.wrapSessionError("send-keys", name, err)
	}
	return nil
}

// KillSession terminates a session. Killing a session that is already gone
// is not an error.
func (c *Client) KillSession(ctx context.Context, name string) error {
	cmd, cancel := c.command(ctx, "kill-session", "-t", name)
	defer cancel()
	if err := cmd.Run(); err != nil {
		if isSessionNotFoundError(err) || isNoServerError(err) {
			return nil
		}
		return fmt.Errorf("tmux kill-session %s: %w", name, err)
	}
	return nil
}

// wrapSessionError converts tmux "can't find session" failures into
// ErrSessionNotFound so callers can treat the session as gone.
func (c *Client) wrapSessionError(verb, name string, err error) error {
	if isSessionNotFoundError(err) || isNoServerError(err) {
		return fmt.Errorf("tmux %s %s: %w", verb, name, ErrSessionNotFound)
	}
	return fmt.Errorf("tmux %s %s: %w", verb, name, err)
}

// isNoServerError reports whether the error indicates no tmux server is up.
func isNoServerError(err error) bool {
	return errContains(err, "no server running") || errContains(err, "error connecting to")
}

// isSessionNotFoundError reports whether the error indicates a missing session.
func isSessionNotFoundError(err error) bool {
	return errContains(err, "session not found") || errContains(err, "can't find session")
}

func errContains(err error, substr string) bool {
	if err == nil {
		return false
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && strings.Contains(string(exitErr.Stderr), substr) {
		return true
	}
	return strings.Contains(err.Error(), substr)
}

// MapKey converts common lowercase key names to the capitalized names tmux
// expects ("enter" -> "Enter", "backspace" -> "BSpace").
func MapKey(key string) string {
	switch key {
	case "up":
		return "Up"
	case "down":
		return "Down"
	case "left":
		return "Left"
	case "right":
		return "Right"
	case "backspace":
		return "BSpace"
	case "tab":
		return "Tab"
	case "enter":
		return "Enter"
	case "esc", "escape":
		return "Escape"
	default:
		return key
	}
}
