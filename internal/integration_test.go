// Package internal contains cross-package integration tests that verify the
// daemon's full event path: discovery, signal watching, state resolution,
// and websocket fan-out working together.
package internal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/engine"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/persist"
	"github.com/agentdeck/agentdeck/internal/protocol"
	"github.com/agentdeck/agentdeck/internal/server"
	"github.com/agentdeck/agentdeck/internal/task"
	"github.com/agentdeck/agentdeck/internal/tmux"
)

type scriptedHost struct {
	sessions []tmux.SessionInfo
	output   string
}

func (h *scriptedHost) ListSessions(ctx context.Context) ([]tmux.SessionInfo, error) {
	return h.sessions, nil
}

func (h *scriptedHost) CapturePane(ctx context.Context, name string, lines int) (string, error) {
	return h.output, nil
}

// TestSignalToWebsocketPath drives the whole daemon: a connecting client
// starts the engine, the poll discovers a session, and a signal document
// written to disk reaches the client as a state event via the watcher fast
// path, without waiting for the next poll tick.
func TestSignalToWebsocketPath(t *testing.T) {
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Paths.DataDir = dir
	cfg.Paths.SignalsDir = filepath.Join(dir, "signals")
	cfg.Paths.CompletionsDir = filepath.Join(dir, "completions")
	cfg.Paths.TasksFile = filepath.Join(dir, "tasks.json")
	// A long poll interval proves the signal arrives through the watcher.
	cfg.Poll.IntervalMs = 60000

	host := &scriptedHost{
		sessions: []tmux.SessionInfo{{Name: "agentdeck-alice", CreatedAt: time.Now()}},
		output:   strings.Repeat("build output\n", 10),
	}

	log := logging.NewDiscard()
	h := hub.New(log)
	completions := persist.NewStore(cfg.Paths.CompletionsDir)
	eng := engine.New(cfg, log, host, h, task.NewFileStore(cfg.Paths.TasksFile), persist.NewRecorder(completions, log))
	defer eng.Stop()

	srv := server.New(cfg, log, h, eng, tmux.NewClient(time.Second), completions)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	next := func() protocol.Message {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("bad envelope: %v", err)
		}
		return msg
	}
	waitFor := func(msgType string) protocol.Message {
		for {
			if msg := next(); msg.Type == msgType {
				return msg
			}
		}
	}

	if msg := next(); msg.Type != protocol.TypeConnected {
		t.Fatalf("first message = %q, want connected", msg.Type)
	}

	// Initial poll: discovery plus heuristic resolution (no signal, no
	// marker, substantial output => idle).
	waitFor(protocol.TypeSessionCreated)
	msg := waitFor(protocol.TypeSessionState)
	var sp protocol.StatePayload
	json.Unmarshal(msg.Payload, &sp)
	if sp.State != "idle" {
		t.Fatalf("initial state = %q, want idle", sp.State)
	}

	// Signal document appears: fast path carries it to the client.
	sigPath := filepath.Join(cfg.Paths.SignalsDir, "agentdeck-alice.signal.json")
	if err := os.WriteFile(sigPath, []byte(`{"type":"needs_input"}`), 0644); err != nil {
		t.Fatal(err)
	}

	msg = waitFor(protocol.TypeSessionState)
	json.Unmarshal(msg.Payload, &sp)
	if sp.State != "needs-input" {
		t.Errorf("signalled state = %q, want needs-input", sp.State)
	}
	if sp.PreviousState != "idle" {
		t.Errorf("previous state = %q, want idle", sp.PreviousState)
	}
}
