// Package protocol defines the JSON event envelope exchanged over the
// conversation WebSocket.
package protocol

import (
	"encoding/json"

	"github.com/converse-live/backend/internal/model"
)

// EventType discriminates envelope payloads.
type EventType string

const (
	// Client -> Server commands
	EventInitSession EventType = "init-session"
	EventTextMessage EventType = "text-message"
	EventChangeMode  EventType = "change-mode"
	EventStopAI      EventType = "stop-ai"

	// Server -> Client events
	EventSessionReady EventType = "session-ready"
	EventAIResponse   EventType = "ai-response"
	EventAIThinking   EventType = "ai-thinking"
	EventModeChanged  EventType = "mode-changed"
	EventAIStopped    EventType = "ai-stopped"
	EventError        EventType = "error"

	// Local connection lifecycle, synthesized by the client connection and
	// never sent over the wire.
	EventConnected       EventType = "connect"
	EventDisconnected    EventType = "disconnect"
	EventReconnectFailed EventType = "reconnect-failed"
)

// Envelope is the wire format for every event, with a type discriminator and
// the union of per-type fields.
type Envelope struct {
	Type EventType `json:"type"`

	// init-session / change-mode / session-ready / mode-changed
	SessionID string           `json:"sessionId,omitempty"`
	Mode      model.Mode       `json:"mode,omitempty"`
	Config    model.ModeConfig `json:"config,omitempty"`

	// text-message / ai-response / mode-changed
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`

	// ai-response
	Timestamp int64 `json:"timestamp,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// Encode serializes the envelope as a JSON text frame.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a JSON text frame into an envelope. Frames that are not valid
// JSON or carry no type discriminator are rejected; callers log and drop them.
func Decode(frame []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return nil, err
	}
	if e.Type == "" {
		return nil, ErrMissingType
	}
	return &e, nil
}
