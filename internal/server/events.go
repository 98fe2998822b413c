// Package server defines the event envelopes exchanged over a chat
// connection and decodes inbound frames into typed hub events.
package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/livechat/internal/chat"
)

// Inbound event names.
const (
	EventJoin    = "join"
	EventNewUser = "newUser"
	EventMessage = "message"
	EventLeave   = "leave"
)

// Outbound event names.
const (
	EventHistory          = "history"
	EventMessageLogs      = "messageLogs"
	EventUserConnected    = "userConnected"
	EventUserDisconnected = "userDisconnected"
	EventError            = "error"
)

// Envelope is the JSON frame carried by every WebSocket text message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// PresenceUpdate is broadcast whenever a user joins or leaves.
type PresenceUpdate struct {
	Username       string   `json:"username"`
	ConnectedUsers []string `json:"connectedUsers"`
}

// ErrorNotice tells a single connection that its last event was refused.
type ErrorNotice struct {
	Error string `json:"error"`
}

type joinPayload struct {
	Username string `json:"username" validate:"required,max=64"`
}

type messagePayload struct {
	Username string `validate:"max=64"`
	Message  string `validate:"required"`
	Extra    map[string]json.RawMessage
}

// clientEvent is what a read pump hands to the hub.
type clientEvent struct {
	client  *Client
	kind    string
	join    joinPayload
	message messagePayload
	err     error
}

const eventRejected = "rejected"

var validate = validator.New()

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", chat.ErrMalformedEvent, fmt.Sprintf(format, args...))
}

// decodeEvent turns one inbound frame into a validated event. Frames that
// cannot be decoded are reported as chat.ErrMalformedEvent.
func decodeEvent(raw []byte) (clientEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return clientEvent{}, malformed("invalid envelope: %v", err)
	}

	switch env.Event {
	case EventJoin, EventNewUser:
		var p joinPayload
		if len(env.Data) == 0 {
			return clientEvent{}, malformed("join without data")
		}
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return clientEvent{}, malformed("invalid join payload: %v", err)
		}
		p.Username = strings.TrimSpace(p.Username)
		if err := validate.Struct(p); err != nil {
			return clientEvent{}, malformed("invalid join payload: %v", err)
		}
		return clientEvent{kind: EventJoin, join: p}, nil

	case EventMessage:
		p, err := decodeMessagePayload(env.Data)
		if err != nil {
			return clientEvent{}, err
		}
		return clientEvent{kind: EventMessage, message: p}, nil

	case EventLeave:
		return clientEvent{kind: EventLeave}, nil

	case "":
		return clientEvent{}, malformed("missing event name")

	default:
		return clientEvent{}, malformed("unknown event %q", env.Event)
	}
}

// decodeMessagePayload keeps unknown fields so they can be stored with the
// entry. A client supplied createdAt is dropped; the log stamps entries.
func decodeMessagePayload(data json.RawMessage) (messagePayload, error) {
	if len(data) == 0 {
		return messagePayload{}, malformed("message without data")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return messagePayload{}, malformed("invalid message payload: %v", err)
	}

	var p messagePayload
	if raw, ok := fields["username"]; ok {
		if err := json.Unmarshal(raw, &p.Username); err != nil {
			return messagePayload{}, malformed("username must be a string")
		}
		p.Username = strings.TrimSpace(p.Username)
	}
	if raw, ok := fields["message"]; ok {
		if err := json.Unmarshal(raw, &p.Message); err != nil {
			return messagePayload{}, malformed("message must be a string")
		}
	}
	delete(fields, "username")
	delete(fields, "message")
	delete(fields, "createdAt")
	if len(fields) > 0 {
		p.Extra = fields
	}

	if err := validate.Struct(p); err != nil {
		return messagePayload{}, malformed("invalid message payload: %v", err)
	}
	return p, nil
}

func encodeEvent(event string, data any) ([]byte, error) {
	return json.Marshal(outbound{Event: event, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
