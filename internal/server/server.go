// Package server is the externally observable streaming interface.
// Dashboard clients attach over a persistent websocket and receive typed
// events; a small REST surface serves point-in-time snapshots.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/engine"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/persist"
	"github.com/agentdeck/agentdeck/internal/protocol"
	"github.com/agentdeck/agentdeck/internal/tmux"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboards connect from local origins
	},
}

// Server routes websocket and REST traffic between clients, the hub, and
// the engine.
type Server struct {
	cfg         *config.Config
	log         *logging.Logger
	hub         *hub.Hub
	engine      *engine.Engine
	tmux        *tmux.Client
	completions *persist.Store

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
}

// New creates a server over the given collaborators.
func New(cfg *config.Config, log *logging.Logger, h *hub.Hub, e *engine.Engine, tc *tmux.Client, completions *persist.Store) *Server {
	return &Server{
		cfg:          cfg,
		log:          log.WithComponent("server"),
		hub:          h,
		engine:       e,
		tmux:         tc,
		completions:  completions,
		pingInterval: time.Duration(cfg.Server.PingIntervalSeconds) * time.Second,
		pongTimeout:  time.Duration(cfg.Server.PongTimeoutSeconds) * time.Second,
		writeTimeout: 10 * time.Second,
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /completions/{taskID}", s.handleGetCompletion)
	return corsMiddleware(mux)
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", "addr", s.cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades the connection, registers the client with the
// hub, and starts the read/write pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := hub.NewClient(s.cfg.Server.SendBufferSize)
	s.hub.Register(client)

	s.sendGreeting(client)
	s.sendSnapshot(client)

	go s.writePump(client, conn)
	go s.readPump(client, conn)
}

// sendGreeting delivers the connected event with the client's id.
func (s *Server) sendGreeting(c *hub.Client) {
	channels := make([]string, 0, len(hub.AllChannels))
	for _, ch := range hub.AllChannels {
		channels = append(channels, string(ch))
	}
	s.sendTo(c, protocol.TypeConnected, protocol.ConnectedPayload{
		ClientID: c.ID,
		Channels: channels,
	})
}

// sendSnapshot replays the current session set so a dashboard can render
// immediately instead of waiting for the next change.
func (s *Server) sendSnapshot(c *hub.Client) {
	for _, payload := range s.engine.Snapshot() {
		s.sendTo(c, protocol.TypeSessionCreated, payload)
	}
}

// sendTo delivers one event to a single client, best-effort.
func (s *Server) sendTo(c *hub.Client, msgType string, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	data, err := msg.Encode()
	if err != nil {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// readPump reads client messages until the connection dies or the client
// misses the pong deadline, then releases all of its hub state.
func (s *Server) readPump(c *hub.Client, conn *websocket.Conn) {
	defer func() {
		s.hub.Disconnect(c)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read error", "client", c.ID, "error", err)
			}
			return
		}
		s.handleClientMessage(c, conn, raw)
	}
}

// writePump drains the client's send channel and enforces liveness with
// periodic pings. A client that cannot be written to is disconnected; the
// deferred close in readPump releases its subscriptions and cursors.
func (s *Server) writePump(c *hub.Client, conn *websocket.Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage processes one validated client message.
func (s *Server) handleClientMessage(c *hub.Client, conn *websocket.Conn, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		s.sendTo(c, protocol.TypePong, nil)

	case protocol.TypeSubscribe:
		var p protocol.ChannelsPayload
		json.Unmarshal(msg.Payload, &p)
		s.hub.Subscribe(c, p.Channels)

	case protocol.TypeUnsubscribe:
		var p protocol.ChannelsPayload
		json.Unmarshal(msg.Payload, &p)
		s.hub.Unsubscribe(c, p.Channels)

	case protocol.TypeSendInput:
		var p protocol.SendInputPayload
		json.Unmarshal(msg.Payload, &p)
		ctx := context.Background()
		if err := s.tmux.SendKeys(ctx, p.SessionName, p.Text); err != nil {
			s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		}

	case protocol.TypeSendKey:
		var p protocol.SendKeyPayload
		json.Unmarshal(msg.Payload, &p)
		ctx := context.Background()
		if err := s.tmux.SendKey(ctx, p.SessionName, p.Key); err != nil {
			s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		}

	case protocol.TypeKillSession:
		var p protocol.KillSessionPayload
		json.Unmarshal(msg.Payload, &p)
		ctx := context.Background()
		if err := s.tmux.KillSession(ctx, p.SessionName); err != nil {
			s.sendError(c, protocol.ErrSessionNotFound, err.Error())
		}
	}
}

func (s *Server) sendError(c *hub.Client, code, message string) {
	s.sendTo(c, protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}

// handleListSessions serves the current session snapshot.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleGetCompletion serves a persisted completion bundle.
func (s *Server) handleGetCompletion(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	bundle, err := s.completions.Load(taskID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "completion not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
