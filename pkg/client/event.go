package client

import (
	"github.com/converse-live/backend/internal/model"
	"github.com/converse-live/backend/internal/protocol"
)

// Wire types re-exported so callers outside this module can use the client
// without importing internal packages directly.

// Envelope is the wire event format.
type Envelope = protocol.Envelope

// EventType names a command or event on the wire.
type EventType = protocol.EventType

// Mode selects the conversation style.
type Mode = model.Mode

// ModeConfig carries per-mode settings.
type ModeConfig = model.ModeConfig

// TranscriptEntry is one utterance in the conversation log.
type TranscriptEntry = model.TranscriptEntry

// TranscriptRole identifies who produced a transcript entry.
type TranscriptRole = model.TranscriptRole

const (
	ModeChat      = model.ModeChat
	ModeInterview = model.ModeInterview
	ModeDebate    = model.ModeDebate
)

const (
	RoleUser   = model.RoleUser
	RoleAI     = model.RoleAI
	RoleSystem = model.RoleSystem
)

const (
	EventSessionReady    = protocol.EventSessionReady
	EventAIResponse      = protocol.EventAIResponse
	EventAIThinking      = protocol.EventAIThinking
	EventModeChanged     = protocol.EventModeChanged
	EventAIStopped       = protocol.EventAIStopped
	EventError           = protocol.EventError
	EventConnected       = protocol.EventConnected
	EventDisconnected    = protocol.EventDisconnected
	EventReconnectFailed = protocol.EventReconnectFailed
)
