package audit

import (
	"context"
	"sync"
)

// RingSink retains the most recent entries in a bounded FIFO buffer. When the
// buffer is full the oldest entry is evicted. Intended as the local holding
// area for security events before they are flushed to a remote collector.
type RingSink struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// NewRingSink creates a ring sink holding at most capacity entries.
func NewRingSink(capacity int) *RingSink {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingSink{
		cap:     capacity,
		entries: make([]Entry, 0, capacity),
	}
}

func (s *RingSink) Emit(_ context.Context, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == s.cap {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:s.cap-1]
	}
	s.entries = append(s.entries, entry)
}

// Entries returns a copy of the buffered entries, oldest first.
func (s *RingSink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of buffered entries.
func (s *RingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Drain removes and returns up to max entries, oldest first.
func (s *RingSink) Drain(max int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max <= 0 || len(s.entries) == 0 {
		return nil
	}
	if max > len(s.entries) {
		max = len(s.entries)
	}

	out := make([]Entry, max)
	copy(out, s.entries[:max])
	remaining := copy(s.entries, s.entries[max:])
	s.entries = s.entries[:remaining]
	return out
}

// Requeue reinserts entries at the front of the buffer, evicting from the
// back if needed. Used when a flush to the remote collector fails.
func (s *RingSink) Requeue(entries []Entry) {
	if len(entries) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]Entry, 0, len(entries)+len(s.entries))
	merged = append(merged, entries...)
	merged = append(merged, s.entries...)
	if len(merged) > s.cap {
		merged = merged[:s.cap]
	}
	s.entries = merged
}
