package memory

import (
	"sync"
	"time"
)

// WorkingMemory is the bounded short-term buffer of recent interactions plus
// a small mutable state map. All methods are safe for concurrent use.
type WorkingMemory struct {
	mu         sync.Mutex
	maxHistory int
	history    []Interaction
	state      map[string]string
}

// NewWorkingMemory creates a working memory bounded to maxHistory entries.
func NewWorkingMemory(maxHistory int) *WorkingMemory {
	if maxHistory < 1 {
		maxHistory = 1
	}
	return &WorkingMemory{
		maxHistory: maxHistory,
		state:      make(map[string]string),
	}
}

// Add appends an interaction, evicting the oldest entry when the buffer is
// full. A zero timestamp is filled with the current time.
func (w *WorkingMemory) Add(in Interaction) {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.history = append(w.history, in)
	if len(w.history) > w.maxHistory {
		w.history = w.history[len(w.history)-w.maxHistory:]
	}
}

// Recent returns a copy of the buffered interactions, oldest first.
func (w *WorkingMemory) Recent() []Interaction {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Interaction, len(w.history))
	copy(out, w.history)
	return out
}

// SetState sets a state entry.
func (w *WorkingMemory) SetState(key, value string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state[key] = value
}

// State returns a copy of the state map.
func (w *WorkingMemory) State() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]string, len(w.state))
	for k, v := range w.state {
		out[k] = v
	}
	return out
}

// Clear empties the history buffer and the state map.
func (w *WorkingMemory) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.history = nil
	w.state = make(map[string]string)
}

// Len returns the number of buffered interactions.
func (w *WorkingMemory) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.history)
}
