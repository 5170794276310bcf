package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/converse-live/backend/internal/model"
)

// RecorderHeader is the first line of a conversation recording.
type RecorderHeader struct {
	Version   int        `json:"version"`
	SessionID string     `json:"sessionId"`
	Mode      model.Mode `json:"mode"`
	Timestamp int64      `json:"timestamp"`
}

// RecorderEvent is a single recorded utterance.
// Format: [offset_seconds, role, text]
type RecorderEvent struct {
	Offset float64
	Role   model.TranscriptRole
	Text   string
}

// MarshalJSON implements custom JSON marshaling for RecorderEvent.
func (e RecorderEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Offset, string(e.Role), e.Text})
}

// UnmarshalJSON implements custom JSON unmarshaling for RecorderEvent.
func (e *RecorderEvent) UnmarshalJSON(data []byte) error {
	var arr []interface{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid offset type")
	}
	e.Offset = offset

	role, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid role type")
	}
	e.Role = model.TranscriptRole(role)

	text, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid text type")
	}
	e.Text = text

	return nil
}

// Recorder writes a conversation to disk as JSON lines: one header line
// followed by one event line per utterance. Recordings survive session
// eviction and can be replayed or exported later.
type Recorder struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// NewRecorder creates a Recorder that writes to the given file path.
func NewRecorder(filePath string) (*Recorder, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create recording file: %w", err)
	}
	return &Recorder{writer: file, file: file, startTime: time.Now()}, nil
}

// NewRecorderWithWriter creates a Recorder that writes to the given writer.
// This is useful for testing.
func NewRecorderWithWriter(w io.Writer) *Recorder {
	return &Recorder{writer: w, startTime: time.Now()}
}

// WriteHeader writes the recording header. Call once before any events.
func (r *Recorder) WriteHeader(sessionID string, mode model.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	header := RecorderHeader{
		Version:   1,
		SessionID: sessionID,
		Mode:      mode,
		Timestamp: r.startTime.Unix(),
	}
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// WriteEntry appends one transcript entry to the recording.
func (r *Recorder) WriteEntry(entry model.TranscriptEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event := RecorderEvent{
		Offset: time.Since(r.startTime).Seconds(),
		Role:   entry.Role,
		Text:   entry.Text,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the underlying file if the recorder owns it.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
