package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/converse-live/backend/internal/model"
)

// TranscriptRepository provides data access for conversation transcripts.
type TranscriptRepository struct {
	db *sql.DB
}

// NewTranscriptRepository creates a new TranscriptRepository.
func NewTranscriptRepository(db *sql.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Append inserts one transcript entry for a session.
func (r *TranscriptRepository) Append(ctx context.Context, sessionID string, entry model.TranscriptEntry) error {
	query := `
		INSERT INTO transcripts (session_id, role, text, spoken_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, sessionID, entry.Role, entry.Text, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append transcript entry: %w", err)
	}

	return nil
}

// ListBySession returns the full transcript of a session in insertion order.
// Ordering follows the autoincrement id, not the spoken_at timestamp.
func (r *TranscriptRepository) ListBySession(ctx context.Context, sessionID string) ([]model.TranscriptEntry, error) {
	query := `
		SELECT role, text, spoken_at
		FROM transcripts
		WHERE session_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	defer rows.Close()

	var entries []model.TranscriptEntry
	for rows.Next() {
		var entry model.TranscriptEntry
		if err := rows.Scan(&entry.Role, &entry.Text, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan transcript entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transcript: %w", err)
	}

	return entries, nil
}

// CountBySession returns the number of transcript entries for a session.
func (r *TranscriptRepository) CountBySession(ctx context.Context, sessionID string) (int, error) {
	query := `SELECT COUNT(*) FROM transcripts WHERE session_id = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transcript entries: %w", err)
	}

	return count, nil
}
