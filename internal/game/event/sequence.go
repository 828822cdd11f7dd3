package event

import "sync"

// Sequencer issues strictly increasing sequence numbers for events.
//
// A single Sequencer owns the counter for the whole process; every event
// gets its number at construction time, which guarantees a total order
// even when events are produced from concurrent call sites (AI response
// processing, direct emission, SSE heartbeat paths). Numbers are never
// reused: a failed event construction loses its number rather than
// returning it.
type Sequencer struct {
	mu   sync.Mutex
	next uint64
}

// NewSequencer creates a sequencer starting at 1.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next
}

// Current returns the most recently issued sequence number.
func (s *Sequencer) Current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// Reset rewinds the counter to zero. Test harnesses only.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}
