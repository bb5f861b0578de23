// Package protocol defines the wire contract between the agentdeck daemon
// and its dashboard clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all events in both directions.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	var data json.RawMessage
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Encode marshals the full envelope for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Server -> client event types.
const (
	TypeConnected        = "connected"
	TypeSessionCreated   = "session-created"
	TypeSessionDestroyed = "session-destroyed"
	TypeSessionOutput    = "session-output"
	TypeSessionState     = "session-state"
	TypeSessionQuestion  = "session-question"
	TypeSessionSignal    = "session-signal"
	TypeSessionComplete  = "session-complete"
	TypePong             = "pong"
	TypeError            = "error"
)

// Client -> server message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypeSendInput   = "send-input"
	TypeSendKey     = "send-key"
	TypeKillSession = "kill-session"
)

// Error codes.
const (
	ErrInvalidMessage  = "INVALID_MESSAGE"
	ErrSessionNotFound = "SESSION_NOT_FOUND"
	ErrUnknownChannel  = "UNKNOWN_CHANNEL"
)

// Server -> client payloads.

// ConnectedPayload greets a new client with its assigned id.
type ConnectedPayload struct {
	ClientID string   `json:"clientId"`
	Channels []string `json:"channels"`
}

// TaskRef is the externally resolved task a session is working on.
type TaskRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// SessionPayload describes a session lifecycle event or snapshot entry.
type SessionPayload struct {
	SessionName string    `json:"sessionName"`
	CreatedAt   time.Time `json:"createdAt"`
	Attached    bool      `json:"attached"`
	State       string    `json:"state,omitempty"`
	Task        *TaskRef  `json:"task,omitempty"`
}

// OutputPayload carries captured output through the delta protocol.
// CursorPosition is the sender's resulting total line count, letting a
// client detect a missed update.
type OutputPayload struct {
	SessionName    string `json:"sessionName"`
	Content        string `json:"content"`
	IsDelta        bool   `json:"isDelta"`
	LineCount      int    `json:"lineCount"`
	DeltaLineCount int    `json:"deltaLineCount,omitempty"`
	CursorPosition int    `json:"cursorPosition"`
}

// StatePayload announces a canonical state change.
type StatePayload struct {
	SessionName   string `json:"sessionName"`
	State         string `json:"state"`
	PreviousState string `json:"previousState,omitempty"`
}

// QuestionPayload carries a pending human-input request.
type QuestionPayload struct {
	SessionName string          `json:"sessionName"`
	Question    string          `json:"question"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// SignalPayload relays a data-kind signal document.
type SignalPayload struct {
	SessionName string          `json:"sessionName"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// CompletePayload carries the full completion bundle.
type CompletePayload struct {
	SessionName string          `json:"sessionName"`
	TaskID      string          `json:"taskId"`
	Bundle      json.RawMessage `json:"bundle"`
}

// ErrorPayload reports a client-visible failure.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client -> server payloads.

// ChannelsPayload names channels for subscribe/unsubscribe.
type ChannelsPayload struct {
	Channels []string `json:"channels"`
}

// SendInputPayload types text into a session.
type SendInputPayload struct {
	SessionName string `json:"sessionName"`
	Text        string `json:"text"`
}

// SendKeyPayload sends a single special key (arrows, escape, control
// chords) into a session without a trailing newline.
type SendKeyPayload struct {
	SessionName string `json:"sessionName"`
	Key         string `json:"key"`
}

// KillSessionPayload terminates a session.
type KillSessionPayload struct {
	SessionName string `json:"sessionName"`
}
