package model

// TranscriptRole identifies who produced a transcript entry.
type TranscriptRole string

const (
	RoleUser   TranscriptRole = "user"
	RoleAI     TranscriptRole = "ai"
	RoleSystem TranscriptRole = "system"
)

// TranscriptEntry is one utterance in the append-only conversation log.
// Entries are ordered by insertion, not by timestamp.
type TranscriptEntry struct {
	Role      TranscriptRole `json:"role"`
	Text      string         `json:"text"`
	Timestamp int64          `json:"timestamp"` // unix milliseconds
}
