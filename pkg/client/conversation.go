package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrBusy is returned when a mode change is requested while a reply is being
// generated or spoken. Pass force to override.
var ErrBusy = errors.New("client: reply in progress")

// AiStatus is the conversation partner's activity state.
type AiStatus int

const (
	StatusIdle AiStatus = iota
	StatusListening
	StatusThinking
	StatusSpeaking
)

func (s AiStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusListening:
		return "listening"
	case StatusThinking:
		return "thinking"
	case StatusSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Recognizer captures speech and reports recognized utterances. Start's
// callback is invoked once per final utterance.
type Recognizer interface {
	Start(onResult func(text string)) error
	Stop() error
}

// Synthesizer speaks text aloud. Speak invokes done when playback completes;
// Cancel aborts playback without invoking done.
type Synthesizer interface {
	Speak(text string, done func()) error
	Cancel() error
}

// Conversation is the session controller: it drives the AI status state
// machine from protocol events and collaborator callbacks, and keeps the
// append-only transcript.
type Conversation struct {
	conn       *Conn
	recognizer Recognizer
	synth      Synthesizer
	log        *zap.Logger

	mu              sync.Mutex
	sessionID       string
	mode            Mode
	config          ModeConfig
	status          AiStatus
	transcript      []TranscriptEntry
	subs            []*Subscription
	statusListeners []func(AiStatus)
	listening       bool
}

// NewConversation creates a session controller on top of an existing
// connection. Recognizer and synthesizer may be nil; the corresponding
// transitions then happen immediately.
func NewConversation(conn *Conn, recognizer Recognizer, synth Synthesizer, log *zap.Logger) *Conversation {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Conversation{
		conn:       conn,
		recognizer: recognizer,
		synth:      synth,
		log:        log,
		status:     StatusIdle,
	}
	c.subscribe()
	return c
}

func (c *Conversation) subscribe() {
	d := c.conn.Dispatcher()
	c.subs = []*Subscription{
		d.On(EventSessionReady, c.onSessionReady),
		d.On(EventAIThinking, c.onThinking),
		d.On(EventAIResponse, c.onResponse),
		d.On(EventModeChanged, c.onModeChanged),
		d.On(EventAIStopped, c.onStopped),
		d.On(EventError, c.onError),
		d.On(EventReconnectFailed, c.onReconnectFailed),
	}
}

// Start connects and initializes a session in the given mode. When the
// controller already knows a session id from a previous run, the server is
// asked to resume it.
func (c *Conversation) Start(ctx context.Context, mode Mode, cfg ModeConfig) error {
	c.mu.Lock()
	c.mode = mode
	c.config = cfg
	sessionID := c.sessionID
	c.mu.Unlock()

	if err := c.conn.Connect(ctx); err != nil {
		return err
	}
	return c.conn.InitSession(sessionID, mode, cfg)
}

// SendText submits one user utterance and moves to thinking.
func (c *Conversation) SendText(text string) error {
	if err := c.conn.SendText(text); err != nil {
		return err
	}
	c.append(RoleUser, text)
	c.setStatus(StatusThinking)
	return nil
}

// ChangeMode switches the conversation mode. While a reply is being generated
// or spoken the switch is rejected locally with ErrBusy unless force is set;
// a forced switch also interrupts the reply.
func (c *Conversation) ChangeMode(mode Mode, cfg ModeConfig, force bool) error {
	c.mu.Lock()
	busy := c.status == StatusThinking || c.status == StatusSpeaking
	c.mu.Unlock()

	if busy {
		if !force {
			return ErrBusy
		}
		c.cancelSpeech()
	}

	if err := c.conn.ChangeMode(mode, cfg); err != nil {
		return err
	}

	c.mu.Lock()
	c.config = cfg
	c.mu.Unlock()
	return nil
}

// Stop interrupts the current reply: the server cancels generation and local
// playback is aborted.
func (c *Conversation) Stop() error {
	err := c.conn.StopAI()
	c.cancelSpeech()
	c.setStatus(StatusIdle)
	return err
}

// Close tears the controller down: handlers are removed, capture stops, and
// the connection is closed.
func (c *Conversation) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, s := range subs {
		s.Remove()
	}
	c.stopListening()
	c.cancelSpeech()
	return c.conn.Close()
}

// Status returns the current AI status.
func (c *Conversation) Status() AiStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the server-assigned session id, or "" before session-ready.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Mode returns the current conversation mode.
func (c *Conversation) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Transcript returns a copy of the conversation log.
func (c *Conversation) Transcript() []TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TranscriptEntry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// OnStatusChange registers a listener for status transitions.
func (c *Conversation) OnStatusChange(fn func(AiStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
}

func (c *Conversation) setStatus(s AiStatus) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	listeners := make([]func(AiStatus), len(c.statusListeners))
	copy(listeners, c.statusListeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Conversation) append(role TranscriptRole, text string) {
	c.mu.Lock()
	c.transcript = append(c.transcript, TranscriptEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
	c.mu.Unlock()
}

func (c *Conversation) onSessionReady(env *Envelope) {
	c.mu.Lock()
	c.sessionID = env.SessionID
	if env.Mode != "" {
		c.mode = env.Mode
	}
	c.mu.Unlock()

	c.log.Info("session ready",
		zap.String("sessionId", env.SessionID),
		zap.String("mode", string(env.Mode)))

	c.startListening()
	c.setStatus(StatusListening)
}

func (c *Conversation) onThinking(env *Envelope) {
	c.setStatus(StatusThinking)
}

func (c *Conversation) onResponse(env *Envelope) {
	c.append(RoleAI, env.Text)
	c.setStatus(StatusSpeaking)

	if c.synth == nil {
		c.setStatus(StatusIdle)
		return
	}
	if err := c.synth.Speak(env.Text, func() {
		c.setStatus(StatusIdle)
	}); err != nil {
		c.log.Warn("speech synthesis failed", zap.Error(err))
		c.setStatus(StatusIdle)
	}
}

func (c *Conversation) onModeChanged(env *Envelope) {
	c.mu.Lock()
	c.mode = env.Mode
	c.mu.Unlock()

	if env.Message != "" {
		c.append(RoleSystem, env.Message)
	}
	c.log.Info("mode changed", zap.String("mode", string(env.Mode)))
}

func (c *Conversation) onStopped(env *Envelope) {
	c.cancelSpeech()
	c.setStatus(StatusIdle)
}

func (c *Conversation) onError(env *Envelope) {
	c.log.Warn("server error", zap.String("message", env.Message))
	c.setStatus(StatusIdle)
}

func (c *Conversation) onReconnectFailed(env *Envelope) {
	c.stopListening()
	c.setStatus(StatusIdle)
}

func (c *Conversation) startListening() {
	c.mu.Lock()
	if c.recognizer == nil || c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = true
	c.mu.Unlock()

	if err := c.recognizer.Start(func(text string) {
		if err := c.SendText(text); err != nil {
			c.log.Warn("failed to send recognized text", zap.Error(err))
		}
	}); err != nil {
		c.log.Warn("failed to start speech capture", zap.Error(err))
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
	}
}

func (c *Conversation) stopListening() {
	c.mu.Lock()
	if c.recognizer == nil || !c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.mu.Unlock()

	if err := c.recognizer.Stop(); err != nil {
		c.log.Warn("failed to stop speech capture", zap.Error(err))
	}
}

func (c *Conversation) cancelSpeech() {
	if c.synth == nil {
		return
	}
	if err := c.synth.Cancel(); err != nil {
		c.log.Warn("failed to cancel speech", zap.Error(err))
	}
}
