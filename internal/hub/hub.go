// Package hub fans canonical session events out to connected dashboard
// clients over named logical channels, and implements the cursor-based
// delta protocol for output streaming.
package hub

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/agentdeck/agentdeck/internal/capture"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/protocol"
)

// Channel names a logical event stream with its own subscriber set.
type Channel string

const (
	ChannelAgentState Channel = "agent-state"
	ChannelTaskChange Channel = "task-change"
	ChannelOutput     Channel = "output"
	ChannelQuestions  Channel = "questions"
	ChannelSystem     Channel = "system"
)

// AllChannels lists every channel a client is subscribed to on connect.
var AllChannels = []Channel{
	ChannelAgentState,
	ChannelTaskChange,
	ChannelOutput,
	ChannelQuestions,
	ChannelSystem,
}

// KnownChannel reports whether the name is a channel the hub serves.
func KnownChannel(name string) bool {
	for _, ch := range AllChannels {
		if string(ch) == name {
			return true
		}
	}
	return false
}

// cursor tracks how much of one session's buffer a client has received.
// hash fingerprints the exact lines the client holds, so a new buffer can
// be checked for strict extension before a delta is sent.
type cursor struct {
	linesSent int
	hash      uint64
}

// Client is one connected viewer. The transport owns the websocket and
// drains Send; the hub never blocks on a slow client.
type Client struct {
	ID   string
	Send chan []byte

	channels map[Channel]bool
	cursors  map[string]cursor
}

// NewClient creates a client subscribed to all channels.
func NewClient(sendBuffer int) *Client {
	channels := make(map[Channel]bool, len(AllChannels))
	for _, ch := range AllChannels {
		channels[ch] = true
	}
	return &Client{
		ID:       uuid.NewString(),
		Send:     make(chan []byte, sendBuffer),
		channels: channels,
		cursors:  make(map[string]cursor),
	}
}

// Hub owns the client set, channel subscriptions, and per-client output
// cursors. All maps live here rather than in package globals so tests can
// instantiate independent hubs without cross-test leakage.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	log     *logging.Logger

	// onClientCount is invoked (outside the lock) whenever the number of
	// connected clients changes. The engine uses it to start on the first
	// client and tear down on the last disconnect.
	onClientCount func(count int)
}

// New creates an empty hub.
func New(log *logging.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		log:     log,
	}
}

// OnClientCountChange registers the lifecycle callback. Must be set before
// the first client connects.
func (h *Hub) OnClientCountChange(fn func(count int)) {
	h.mu.Lock()
	h.onClientCount = fn
	h.mu.Unlock()
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	fn := h.onClientCount
	h.mu.Unlock()

	h.log.Debug("client connected", "client", c.ID, "clients", count)
	if fn != nil {
		fn(count)
	}
}

// Disconnect removes a client, releasing its subscriptions and cursor
// state. Safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	fn := h.onClientCount
	h.mu.Unlock()

	close(c.Send)
	h.log.Debug("client disconnected", "client", c.ID, "clients", count)
	if fn != nil {
		fn(count)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Subscribe adds the client to the named channels.
func (h *Hub) Subscribe(c *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range channels {
		if KnownChannel(name) {
			c.channels[Channel(name)] = true
		}
	}
}

// Unsubscribe removes the client from the named channels.
func (h *Hub) Unsubscribe(c *Client, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range channels {
		delete(c.channels, Channel(name))
	}
}

// SubscriberCount returns how many clients are subscribed to a channel.
// Expensive producers check this before doing capture work at all.
func (h *Hub) SubscriberCount(ch Channel) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for c := range h.clients {
		if c.channels[ch] {
			n++
		}
	}
	return n
}

// Publish delivers a message to every subscriber of the channel and
// returns the number of clients it was handed to. Zero subscribers is a
// valid no-op, not an error. A client whose send buffer is full is
// skipped; its view self-heals on the next update.
func (h *Hub) Publish(ch Channel, msg *protocol.Message) int {
	data, err := msg.Encode()
	if err != nil {
		h.log.Error("failed to encode message", "type", msg.Type, "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients {
		if !c.channels[ch] {
			continue
		}
		if h.deliver(c, data) {
			delivered++
		}
	}
	return delivered
}

// deliver hands encoded bytes to one client without blocking.
func (h *Hub) deliver(c *Client, data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		h.log.Warn("client send buffer full, dropping message", "client", c.ID)
		return false
	}
}

// BroadcastOutput streams a session's captured buffer to every output
// subscriber through the delta protocol. Each client's cursor is advanced
// independently, so clients that connected at different times each receive
// a self-consistent stream.
//
// Per client:
//   - no cursor yet: full buffer, isDelta=false
//   - strict extension (line count grew or held, prefix unchanged): only
//     the new lines, isDelta=true
//   - rewind or in-place edit: full buffer again, cursor reset
func (h *Hub) BroadcastOutput(session, text string) int {
	lines := capture.SplitLines(text)
	lineCount := len(lines)
	fullHash := capture.FingerprintLines(lines, lineCount)

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.clients {
		if !c.channels[ChannelOutput] {
			continue
		}
		if h.sendOutput(c, session, lines, lineCount, fullHash, text) {
			delivered++
		}
	}
	return delivered
}

// sendOutput applies the delta protocol for one client. Caller holds h.mu.
func (h *Hub) sendOutput(c *Client, session string, lines []string, lineCount int, fullHash uint64, text string) bool {
	cur, initialized := c.cursors[session]

	var payload protocol.OutputPayload
	switch {
	case !initialized:
		payload = protocol.OutputPayload{
			SessionName:    session,
			Content:        text,
			IsDelta:        false,
			LineCount:      lineCount,
			CursorPosition: lineCount,
		}

	case lineCount >= cur.linesSent &&
		capture.FingerprintLines(lines, cur.linesSent) == cur.hash:
		// Strict extension of what the client already holds.
		if lineCount == cur.linesSent && fullHash == cur.hash {
			return false // nothing new for this client
		}
		delta := lines[cur.linesSent:]
		payload = protocol.OutputPayload{
			SessionName:    session,
			Content:        joinLines(delta),
			IsDelta:        true,
			LineCount:      lineCount,
			DeltaLineCount: len(delta),
			CursorPosition: lineCount,
		}

	default:
		// Buffer rewound or edited in place: resynchronize with a full send.
		payload = protocol.OutputPayload{
			SessionName:    session,
			Content:        text,
			IsDelta:        false,
			LineCount:      lineCount,
			CursorPosition: lineCount,
		}
	}

	msg, err := protocol.NewMessage(protocol.TypeSessionOutput, payload)
	if err != nil {
		return false
	}
	data, err := msg.Encode()
	if err != nil {
		return false
	}

	if !h.deliver(c, data) {
		// The client missed this update; drop its cursor so the next
		// broadcast resynchronizes with a full buffer.
		delete(c.cursors, session)
		return false
	}

	c.cursors[session] = cursor{linesSent: lineCount, hash: fullHash}
	return true
}

// DropSession clears every client's cursor for a destroyed session.
func (h *Hub) DropSession(session string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(c.cursors, session)
	}
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
