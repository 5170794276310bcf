package model

import (
	"encoding/json"
	"time"
)

// Mode selects the conversation style for a session.
type Mode string

const (
	ModeChat      Mode = "chat"
	ModeInterview Mode = "interview"
	ModeDebate    Mode = "debate"
)

// Valid reports whether m is one of the supported conversation modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeChat, ModeInterview, ModeDebate:
		return true
	}
	return false
}

// SessionStatus represents the lifecycle state of a conversation session.
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// ModeConfig carries the per-mode configuration supplied by the client.
// Only the fields relevant to the selected mode are populated.
type ModeConfig struct {
	// interview
	Role           string `json:"role,omitempty"`
	Company        string `json:"company,omitempty"`
	TotalQuestions int    `json:"totalQuestions,omitempty"`

	// debate
	Topic  string `json:"topic,omitempty"`
	Stance string `json:"stance,omitempty"`
}

// ModeData is the server-side working state for the current mode. It is
// re-initialized whenever the session mode changes.
type ModeData struct {
	// interview
	Role           string `json:"role,omitempty"`
	Company        string `json:"company,omitempty"`
	QuestionIndex  int    `json:"questionIndex,omitempty"`
	TotalQuestions int    `json:"totalQuestions,omitempty"`

	// debate
	Topic         string   `json:"topic,omitempty"`
	Stance        string   `json:"stance,omitempty"`
	ArgumentsMade []string `json:"argumentsMade,omitempty"`
}

// InitModeData builds the working state for a mode from its configuration,
// filling in the same defaults the conversation prompts assume.
func InitModeData(mode Mode, cfg ModeConfig) ModeData {
	switch mode {
	case ModeInterview:
		data := ModeData{
			Role:           cfg.Role,
			Company:        cfg.Company,
			TotalQuestions: cfg.TotalQuestions,
		}
		if data.Role == "" {
			data.Role = "Software Engineer"
		}
		if data.Company == "" {
			data.Company = "Tech Company"
		}
		if data.TotalQuestions <= 0 {
			data.TotalQuestions = 5
		}
		return data
	case ModeDebate:
		data := ModeData{
			Topic:  cfg.Topic,
			Stance: cfg.Stance,
		}
		if data.Topic == "" {
			data.Topic = "AI in society"
		}
		if data.Stance == "" {
			data.Stance = "pro"
		}
		return data
	default:
		return ModeData{}
	}
}

// Session represents a conversation session bound to one client.
type Session struct {
	ID           string        `json:"id"`
	ClientID     string        `json:"clientId"`
	Mode         Mode          `json:"mode"`
	Config       ModeConfig    `json:"config"`
	ModeData     ModeData      `json:"modeData"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastActivity time.Time     `json:"lastActivity"`
}

// ConfigToJSON serializes the mode configuration for storage.
func (s *Session) ConfigToJSON() (string, error) {
	data, err := json.Marshal(s.Config)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ConfigFromJSON parses a stored configuration string.
func (s *Session) ConfigFromJSON(data string) error {
	if data == "" {
		s.Config = ModeConfig{}
		return nil
	}
	return json.Unmarshal([]byte(data), &s.Config)
}

// StartSessionRequest represents a request to create a new session.
type StartSessionRequest struct {
	Mode   Mode       `json:"mode" binding:"required"`
	Config ModeConfig `json:"config"`
}

// Validate validates the start session request.
func (r *StartSessionRequest) Validate() error {
	if !r.Mode.Valid() {
		return ErrInvalidMode
	}
	return nil
}
