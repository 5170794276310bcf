// Package relay orchestrates the conversation protocol: it translates client
// commands into session and language-model operations and pushes the resulting
// events back to the client.
package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/converse-live/backend/internal/llm"
	"github.com/converse-live/backend/internal/model"
	"github.com/converse-live/backend/internal/protocol"
	"github.com/converse-live/backend/internal/session"
)

// generateTimeout bounds a single language-model call.
const generateTimeout = 20 * time.Second

// Sender pushes an event to a connected client.
type Sender interface {
	SendEvent(clientID string, ev *protocol.Envelope)
}

// generation tracks one in-flight reply so stop-ai and change-mode can
// cancel it.
type generation struct {
	seq    uint64
	cancel context.CancelFunc
}

// Service is the conversation relay.
type Service struct {
	sessions *session.Manager
	provider llm.Provider
	sender   Sender
	log      *zap.Logger

	mu       sync.Mutex
	bindings map[string]string     // clientID -> sessionID
	inflight map[string]generation // clientID -> active generation
	seq      uint64
}

// NewService creates a conversation relay.
func NewService(sessions *session.Manager, provider llm.Provider, sender Sender, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		sessions: sessions,
		provider: provider,
		sender:   sender,
		log:      log,
		bindings: make(map[string]string),
		inflight: make(map[string]generation),
	}
}

// Dispatch routes one decoded client command.
func (s *Service) Dispatch(ctx context.Context, clientID string, env *protocol.Envelope) {
	switch env.Type {
	case protocol.EventInitSession:
		s.handleInitSession(ctx, clientID, env)
	case protocol.EventTextMessage:
		s.handleTextMessage(ctx, clientID, env)
	case protocol.EventChangeMode:
		s.handleChangeMode(ctx, clientID, env)
	case protocol.EventStopAI:
		s.handleStopAI(clientID)
	default:
		s.log.Warn("unknown command", zap.String("clientId", clientID), zap.String("type", string(env.Type)))
	}
}

// ClientDisconnected cancels any in-flight generation and unbinds the client.
// The session itself stays in the store so a reconnecting client can resume it.
func (s *Service) ClientDisconnected(clientID string) {
	s.mu.Lock()
	if g, ok := s.inflight[clientID]; ok {
		g.cancel()
		delete(s.inflight, clientID)
	}
	delete(s.bindings, clientID)
	s.mu.Unlock()
}

// SessionFor returns the session currently bound to a client.
func (s *Service) SessionFor(clientID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bindings[clientID]
	return id, ok
}

func (s *Service) sendError(clientID, message string) {
	s.sender.SendEvent(clientID, &protocol.Envelope{
		Type:    protocol.EventError,
		Message: message,
	})
}

// handleInitSession starts a new session, or resumes the one named by the
// command when it still exists, and speaks a greeting.
func (s *Service) handleInitSession(ctx context.Context, clientID string, env *protocol.Envelope) {
	mode := env.Mode
	if mode == "" {
		mode = model.ModeChat
	}

	var sc *session.Context
	if env.SessionID != "" {
		if existing, err := s.sessions.Get(ctx, env.SessionID); err == nil {
			sc = existing
		}
	}

	if sc == nil {
		sess, err := s.sessions.Create(ctx, clientID, mode, env.Config)
		if err != nil {
			s.log.Error("failed to create session", zap.String("clientId", clientID), zap.Error(err))
			s.sendError(clientID, err.Error())
			return
		}
		var gerr error
		sc, gerr = s.sessions.Get(ctx, sess.ID)
		if gerr != nil {
			s.sendError(clientID, gerr.Error())
			return
		}
	}

	s.mu.Lock()
	s.bindings[clientID] = sc.Session.ID
	s.mu.Unlock()

	s.log.Info("session initialized",
		zap.String("clientId", clientID),
		zap.String("sessionId", sc.Session.ID),
		zap.String("mode", string(sc.Session.Mode)))

	greeting := s.generateGreeting(ctx, sc)
	if err := s.sessions.AddMessage(ctx, sc.Session.ID, model.RoleAI, greeting); err != nil {
		s.log.Warn("failed to store greeting", zap.String("sessionId", sc.Session.ID), zap.Error(err))
	}

	s.sender.SendEvent(clientID, &protocol.Envelope{
		Type:      protocol.EventSessionReady,
		SessionID: sc.Session.ID,
		Mode:      sc.Session.Mode,
	})
	s.sender.SendEvent(clientID, &protocol.Envelope{
		Type:      protocol.EventAIResponse,
		Text:      greeting,
		Timestamp: time.Now().UnixMilli(),
	})
}

// generateGreeting asks the model for an opening line, falling back to a
// canned greeting when the provider is unavailable.
func (s *Service) generateGreeting(ctx context.Context, sc *session.Context) string {
	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	history := []llm.Message{
		{Role: "system", Content: llm.SystemPrompt(sc.Session.Mode, sc.Session.ModeData)},
		{Role: "user", Content: llm.GreetingPrompt(sc.Session.Mode, sc.Session.ModeData)},
	}
	greeting, err := s.provider.Chat(genCtx, history, llm.WithMaxTokens(200))
	if err != nil || greeting == "" {
		if err != nil {
			s.log.Warn("greeting generation failed, using fallback", zap.Error(err))
		}
		return llm.FallbackGreeting(sc.Session.Mode, sc.Session.ModeData)
	}
	return greeting
}

// handleTextMessage forwards a recognized utterance to the model and replies.
func (s *Service) handleTextMessage(ctx context.Context, clientID string, env *protocol.Envelope) {
	text := strings.TrimSpace(env.Text)
	if text == "" {
		return
	}

	s.mu.Lock()
	sessionID, bound := s.bindings[clientID]
	s.mu.Unlock()
	if !bound {
		s.sendError(clientID, "No active session")
		return
	}

	sc, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.sendError(clientID, "No active session")
		return
	}

	s.log.Info("user message", zap.String("sessionId", sessionID), zap.Int("chars", len(text)))

	if err := s.sessions.AddMessage(ctx, sessionID, model.RoleUser, text); err != nil {
		s.log.Warn("failed to store user message", zap.String("sessionId", sessionID), zap.Error(err))
	}

	s.sender.SendEvent(clientID, &protocol.Envelope{Type: protocol.EventAIThinking})

	// Snapshot the context window before the async generation; the window
	// already contains the user text appended above.
	window := sc.History.Entries()
	if len(window) > 0 {
		window = window[:len(window)-1]
	}
	mode := sc.Session.Mode
	data := sc.Session.ModeData

	genCtx, cancel := context.WithTimeout(context.Background(), generateTimeout)
	s.mu.Lock()
	if prev, ok := s.inflight[clientID]; ok {
		// One reply at a time per client; a newer utterance supersedes it.
		prev.cancel()
	}
	s.seq++
	myGen := generation{seq: s.seq, cancel: cancel}
	s.inflight[clientID] = myGen
	s.mu.Unlock()

	go func() {
		defer cancel()

		history := llm.BuildChatHistory(mode, data, window, text)
		reply, err := s.provider.Chat(genCtx, history, llm.WithMaxTokens(500))

		// Claim completion. If stop-ai, change-mode, or a newer utterance
		// already removed this generation, the reply belongs to a superseded
		// turn and must not be stored or spoken.
		s.mu.Lock()
		cur, ok := s.inflight[clientID]
		current := ok && cur.seq == myGen.seq
		if current {
			delete(s.inflight, clientID)
		}
		s.mu.Unlock()
		if !current {
			s.log.Info("discarding superseded reply", zap.String("sessionId", sessionID))
			return
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(genCtx.Err(), context.Canceled) {
				s.log.Info("generation cancelled", zap.String("sessionId", sessionID))
				return
			}
			s.log.Error("generation failed", zap.String("sessionId", sessionID), zap.Error(err))
			s.sendError(clientID, "Error processing your message")
			return
		}

		bg := context.Background()
		updated := llm.AdvanceModeData(mode, data, reply)
		if err := s.sessions.UpdateModeData(bg, sessionID, updated); err != nil {
			s.log.Warn("failed to update mode data", zap.String("sessionId", sessionID), zap.Error(err))
		}
		if err := s.sessions.AddMessage(bg, sessionID, model.RoleAI, reply); err != nil {
			s.log.Warn("failed to store reply", zap.String("sessionId", sessionID), zap.Error(err))
		}

		s.sender.SendEvent(clientID, &protocol.Envelope{
			Type:      protocol.EventAIResponse,
			Text:      reply,
			Timestamp: time.Now().UnixMilli(),
		})
	}()
}

// handleChangeMode switches the bound session to a new mode. An in-flight
// generation belongs to the old mode and is cancelled rather than raced.
func (s *Service) handleChangeMode(ctx context.Context, clientID string, env *protocol.Envelope) {
	s.mu.Lock()
	sessionID, bound := s.bindings[clientID]
	if g, ok := s.inflight[clientID]; ok {
		g.cancel()
		delete(s.inflight, clientID)
	}
	s.mu.Unlock()

	if !bound {
		s.sendError(clientID, "No active session")
		return
	}

	if err := s.sessions.ChangeMode(ctx, sessionID, env.Mode, env.Config); err != nil {
		s.sendError(clientID, err.Error())
		return
	}

	sc, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		s.sendError(clientID, err.Error())
		return
	}

	transition := llm.TransitionMessage(sc.Session.Mode, sc.Session.ModeData)
	if err := s.sessions.AddMessage(ctx, sessionID, model.RoleAI, transition); err != nil {
		s.log.Warn("failed to store transition", zap.String("sessionId", sessionID), zap.Error(err))
	}

	s.sender.SendEvent(clientID, &protocol.Envelope{
		Type:    protocol.EventModeChanged,
		Mode:    sc.Session.Mode,
		Message: transition,
	})
	s.sender.SendEvent(clientID, &protocol.Envelope{
		Type:      protocol.EventAIResponse,
		Text:      transition,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleStopAI cancels any in-flight generation and confirms the stop.
func (s *Service) handleStopAI(clientID string) {
	s.mu.Lock()
	if g, ok := s.inflight[clientID]; ok {
		g.cancel()
		delete(s.inflight, clientID)
	}
	s.mu.Unlock()

	s.log.Info("user interrupted", zap.String("clientId", clientID))
	s.sender.SendEvent(clientID, &protocol.Envelope{Type: protocol.EventAIStopped})
}
