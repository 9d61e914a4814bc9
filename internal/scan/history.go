package scan

import "sync"

// HistoryCapacity is the number of recent scans kept in memory.
const HistoryCapacity = 10

// History is a bounded, newest-first list of recent scans. It is safe for
// concurrent use.
type History struct {
	mu       sync.RWMutex
	capacity int
	entries  []Event
}

// NewHistory returns an empty history holding at most capacity events.
// A non-positive capacity falls back to HistoryCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}
	return &History{
		capacity: capacity,
		entries:  make([]Event, 0, capacity),
	}
}

// Add prepends ev and evicts the oldest entry once capacity is exceeded.
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) < h.capacity {
		h.entries = append(h.entries, Event{})
	}
	copy(h.entries[1:], h.entries[:len(h.entries)-1])
	h.entries[0] = ev
}

// Entries returns a copy of the history, most recent first.
func (h *History) Entries() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.entries))
	copy(out, h.entries)
	return out
}

// Latest returns the most recent event, if any.
func (h *History) Latest() (Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return Event{}, false
	}
	return h.entries[0], true
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

func (h *History) Capacity() int {
	return h.capacity
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = h.entries[:0]
}
