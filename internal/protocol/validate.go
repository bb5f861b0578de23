package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownType is returned for message types the server does not accept.
var ErrUnknownType = errors.New("unknown message type")

// ValidateClientMessage parses and validates a raw client message.
// The payload is checked for the fields its type requires so handlers can
// unmarshal without re-validating.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch msg.Type {
	case TypePing:
		return &msg, nil

	case TypeSubscribe, TypeUnsubscribe:
		var p ChannelsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", msg.Type, err)
		}
		if len(p.Channels) == 0 {
			return nil, fmt.Errorf("%s requires at least one channel", msg.Type)
		}
		return &msg, nil

	case TypeSendInput:
		var p SendInputPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed send-input payload: %w", err)
		}
		if p.SessionName == "" {
			return nil, errors.New("send-input requires sessionName")
		}
		return &msg, nil

	case TypeSendKey:
		var p SendKeyPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed send-key payload: %w", err)
		}
		if p.SessionName == "" || p.Key == "" {
			return nil, errors.New("send-key requires sessionName and key")
		}
		return &msg, nil

	case TypeKillSession:
		var p KillSessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("malformed kill-session payload: %w", err)
		}
		if p.SessionName == "" {
			return nil, errors.New("kill-session requires sessionName")
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}
