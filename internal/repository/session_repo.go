package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/converse-live/backend/internal/model"
)

// SessionRepository provides data access for conversation sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session into the database.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	configJSON, err := session.ConfigToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	query := `
		INSERT INTO sessions (id, client_id, mode, config, status, created_at, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.ClientID,
		session.Mode,
		configJSON,
		session.Status,
		session.CreatedAt,
		session.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `
		SELECT id, client_id, mode, config, status, created_at, last_activity
		FROM sessions
		WHERE id = ?
	`

	session := &model.Session{}
	var configJSON sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID,
		&session.ClientID,
		&session.Mode,
		&configJSON,
		&session.Status,
		&session.CreatedAt,
		&session.LastActivity,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if configJSON.Valid {
		if err := session.ConfigFromJSON(configJSON.String); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	return session, nil
}

// UpdateMode updates the mode and configuration of a session.
func (r *SessionRepository) UpdateMode(ctx context.Context, id string, mode model.Mode, cfg model.ModeConfig) error {
	session := &model.Session{Config: cfg}
	configJSON, err := session.ConfigToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	query := `
		UPDATE sessions
		SET mode = ?, config = ?, last_activity = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, mode, configJSON, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session mode: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// UpdateStatus updates the status of a session.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status model.SessionStatus) error {
	query := `
		UPDATE sessions
		SET status = ?, last_activity = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// Touch updates the last-activity timestamp of a session.
func (r *SessionRepository) Touch(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_activity = ? WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// Delete removes a session and its transcript from the database.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM sessions WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}

	return nil
}

// Exists checks if a session exists.
func (r *SessionRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM sessions WHERE id = ? LIMIT 1`

	var exists int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}

	return true, nil
}
