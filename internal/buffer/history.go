// Package buffer provides a bounded window over conversation history.
package buffer

import (
	"sync"

	"github.com/converse-live/backend/internal/model"
)

// History is a thread-safe bounded log that keeps the most recent transcript
// entries up to a specified capacity. When the window is full, oldest entries
// are discarded to make room for new ones.
//
// The session manager uses it to cap the in-memory conversation context
// handed to the language model; the full transcript lives in the database.
type History struct {
	entries  []model.TranscriptEntry
	capacity int
	mu       sync.RWMutex
}

// NewHistory creates a History with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{
		entries:  make([]model.TranscriptEntry, 0, capacity),
		capacity: capacity,
	}
}

// Append adds an entry, evicting the oldest entry when the window is full.
func (h *History) Append(entry model.TranscriptEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) == h.capacity {
		copy(h.entries, h.entries[1:])
		h.entries[len(h.entries)-1] = entry
		return
	}
	h.entries = append(h.entries, entry)
}

// Entries returns a copy of the current window in insertion order.
func (h *History) Entries() []model.TranscriptEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.entries) == 0 {
		return nil
	}
	out := make([]model.TranscriptEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Clear removes all entries from the window.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = h.entries[:0]
}

// Len returns the current number of entries in the window.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.entries)
}

// Cap returns the capacity of the window.
func (h *History) Cap() int {
	return h.capacity
}
