// Package session manages conversation sessions and their history.
package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/converse-live/backend/internal/buffer"
	"github.com/converse-live/backend/internal/logger"
	"github.com/converse-live/backend/internal/model"
	"github.com/converse-live/backend/internal/repository"
)

// HistoryCap bounds the in-memory conversation window handed to the model.
const HistoryCap = 30

// Context holds the runtime state for an active session.
type Context struct {
	Session  *model.Session
	History  *buffer.History
	Recorder *logger.Recorder
}

// Config holds configuration for the session manager.
type Config struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	TranscriptDir string
}

// Manager manages conversation sessions. Active sessions live in a TTL cache
// and are evicted after an idle period; the database keeps the durable record.
type Manager struct {
	sessions       *gocache.Cache
	sessionRepo    *repository.SessionRepository
	transcriptRepo *repository.TranscriptRepository
	transcriptDir  string
	log            *zap.Logger
}

// NewManager creates a new session manager.
func NewManager(sessionRepo *repository.SessionRepository, transcriptRepo *repository.TranscriptRepository, cfg Config, log *zap.Logger) *Manager {
	if cfg.IdleTTL == 0 {
		cfg.IdleTTL = time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}

	sessions := gocache.New(cfg.IdleTTL, cfg.SweepInterval)

	m := &Manager{
		sessions:       sessions,
		sessionRepo:    sessionRepo,
		transcriptRepo: transcriptRepo,
		transcriptDir:  cfg.TranscriptDir,
		log:            log,
	}

	sessions.OnEvicted(func(id string, v interface{}) {
		sc, ok := v.(*Context)
		if !ok {
			return
		}
		m.log.Info("session evicted after idle timeout", zap.String("sessionId", id))
		if sc.Recorder != nil {
			sc.Recorder.Close()
		}
		if err := m.sessionRepo.UpdateStatus(context.Background(), id, model.SessionStatusEnded); err != nil {
			m.log.Warn("failed to mark evicted session ended", zap.String("sessionId", id), zap.Error(err))
		}
	})

	return m
}

// Create creates a new conversation session for a client.
func (m *Manager) Create(ctx context.Context, clientID string, mode model.Mode, cfg model.ModeConfig) (*model.Session, error) {
	if !mode.Valid() {
		return nil, model.ErrInvalidMode
	}

	now := time.Now()
	sess := &model.Session{
		ID:           uuid.New().String(),
		ClientID:     clientID,
		Mode:         mode,
		Config:       cfg,
		ModeData:     model.InitModeData(mode, cfg),
		Status:       model.SessionStatusActive,
		CreatedAt:    now,
		LastActivity: now,
	}

	if err := m.sessionRepo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	sc := &Context{
		Session: sess,
		History: buffer.NewHistory(HistoryCap),
	}
	sc.Recorder = m.openRecorder(sess)

	m.sessions.Set(sess.ID, sc, gocache.DefaultExpiration)

	m.log.Info("session created",
		zap.String("sessionId", sess.ID),
		zap.String("clientId", clientID),
		zap.String("mode", string(mode)))

	return sess, nil
}

// openRecorder starts a conversation recording for the session. Recording is
// best effort; a failure disables it for the session but not the session itself.
func (m *Manager) openRecorder(sess *model.Session) *logger.Recorder {
	if m.transcriptDir == "" {
		return nil
	}
	path := filepath.Join(m.transcriptDir, fmt.Sprintf("%s.jsonl", sess.ID))
	if err := os.MkdirAll(m.transcriptDir, 0o755); err != nil {
		m.log.Warn("failed to create transcript dir", zap.Error(err))
		return nil
	}
	rec, err := logger.NewRecorder(path)
	if err != nil {
		m.log.Warn("failed to open conversation recording", zap.String("sessionId", sess.ID), zap.Error(err))
		return nil
	}
	if err := rec.WriteHeader(sess.ID, sess.Mode); err != nil {
		m.log.Warn("failed to write recording header", zap.String("sessionId", sess.ID), zap.Error(err))
	}
	return rec
}

// Get retrieves an active session, rehydrating it from the database when it
// has been evicted. Rehydration reloads the tail of the stored transcript
// into the context window so a resumed conversation keeps its thread.
func (m *Manager) Get(ctx context.Context, id string) (*Context, error) {
	if v, ok := m.sessions.Get(id); ok {
		return v.(*Context), nil
	}

	sess, err := m.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.ModeData = model.InitModeData(sess.Mode, sess.Config)
	sess.Status = model.SessionStatusActive

	sc := &Context{
		Session: sess,
		History: buffer.NewHistory(HistoryCap),
	}

	entries, err := m.transcriptRepo.ListBySession(ctx, id)
	if err != nil {
		m.log.Warn("failed to reload transcript for resumed session", zap.String("sessionId", id), zap.Error(err))
	} else {
		// Append evicts beyond the cap, so only the tail survives
		for _, e := range entries {
			sc.History.Append(e)
		}
	}

	if err := m.sessionRepo.UpdateStatus(ctx, id, model.SessionStatusActive); err != nil {
		m.log.Warn("failed to reactivate session", zap.String("sessionId", id), zap.Error(err))
	}

	m.sessions.Set(id, sc, gocache.DefaultExpiration)
	m.log.Info("session resumed from store", zap.String("sessionId", id))

	return sc, nil
}

// AddMessage appends one utterance to the session history and persists it.
func (m *Manager) AddMessage(ctx context.Context, id string, role model.TranscriptRole, text string) error {
	sc, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	entry := model.TranscriptEntry{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}

	sc.History.Append(entry)

	if err := m.transcriptRepo.Append(ctx, id, entry); err != nil {
		return err
	}
	if sc.Recorder != nil {
		if err := sc.Recorder.WriteEntry(entry); err != nil {
			m.log.Warn("failed to record transcript entry", zap.String("sessionId", id), zap.Error(err))
		}
	}

	m.Touch(ctx, id)
	return nil
}

// ChangeMode switches the session to a new mode, re-initializing the mode's
// working state from the supplied configuration.
func (m *Manager) ChangeMode(ctx context.Context, id string, mode model.Mode, cfg model.ModeConfig) error {
	if !mode.Valid() {
		return model.ErrInvalidMode
	}

	sc, err := m.Get(ctx, id)
	if err != nil {
		return err
	}

	sc.Session.Mode = mode
	sc.Session.Config = cfg
	sc.Session.ModeData = model.InitModeData(mode, cfg)
	sc.Session.LastActivity = time.Now()

	if err := m.sessionRepo.UpdateMode(ctx, id, mode, cfg); err != nil {
		return err
	}

	m.sessions.Set(id, sc, gocache.DefaultExpiration)
	m.log.Info("session mode changed", zap.String("sessionId", id), zap.String("mode", string(mode)))

	return nil
}

// UpdateModeData replaces the session's mode working state.
func (m *Manager) UpdateModeData(ctx context.Context, id string, data model.ModeData) error {
	sc, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	sc.Session.ModeData = data
	return nil
}

// Touch resets the session's idle timer.
func (m *Manager) Touch(ctx context.Context, id string) {
	if v, ok := m.sessions.Get(id); ok {
		m.sessions.Set(id, v, gocache.DefaultExpiration)
	}
	if err := m.sessionRepo.Touch(ctx, id); err != nil {
		m.log.Warn("failed to touch session", zap.String("sessionId", id), zap.Error(err))
	}
}

// Transcript returns the full stored transcript for a session in insertion order.
func (m *Manager) Transcript(ctx context.Context, id string) ([]model.TranscriptEntry, error) {
	exists, err := m.sessionRepo.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrSessionNotFound
	}
	return m.transcriptRepo.ListBySession(ctx, id)
}

// Delete ends a session and removes it from the active set. The stored
// transcript remains until the session row is deleted.
func (m *Manager) Delete(ctx context.Context, id string) error {
	// Eviction callback closes the recorder and marks the row ended; the
	// row delete below then removes it along with the stored transcript.
	m.sessions.Delete(id)
	return m.sessionRepo.Delete(ctx, id)
}

// RecordingPath returns the on-disk path of a session's conversation
// recording, or "" when recording is disabled.
func (m *Manager) RecordingPath(id string) string {
	if m.transcriptDir == "" {
		return ""
	}
	return filepath.Join(m.transcriptDir, fmt.Sprintf("%s.jsonl", id))
}

// ActiveCount returns the number of sessions currently in the active set.
func (m *Manager) ActiveCount() int {
	return m.sessions.ItemCount()
}

// Close flushes all active session recordings. Flush bypasses the eviction
// callback, so recordings are closed here explicitly.
func (m *Manager) Close() error {
	for id, item := range m.sessions.Items() {
		if sc, ok := item.Object.(*Context); ok && sc.Recorder != nil {
			if err := sc.Recorder.Close(); err != nil {
				m.log.Warn("failed to close recording", zap.String("sessionId", id), zap.Error(err))
			}
		}
	}
	m.sessions.Flush()
	return nil
}
