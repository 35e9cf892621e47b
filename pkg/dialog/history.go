package dialog

import "sync"

// History is the mutex-guarded chat transcript. Turns are only ever appended
// in user/assistant pairs, so a failed exchange leaves it untouched and its
// length stays even.
type History struct {
	mu    sync.Mutex
	turns []Message
}

// NewHistory returns an empty transcript.
func NewHistory() *History {
	return &History{}
}

// Snapshot returns a copy of the transcript safe to extend for a request.
func (h *History) Snapshot() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.turns))
	copy(out, h.turns)
	return out
}

// AddTurn appends a completed user/assistant exchange under one lock.
func (h *History) AddTurn(user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns,
		Message{Role: "user", Content: user},
		Message{Role: "assistant", Content: assistant},
	)
}

// Len reports the number of stored messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Reset clears the transcript.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
