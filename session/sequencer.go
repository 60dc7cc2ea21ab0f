package session

import "sync/atomic"

// Ticket identifies one issued check.
type Ticket uint64

// Sequencer implements "latest check wins": only the most recently issued
// ticket is current, so a slow earlier answer can be recognized and dropped.
type Sequencer struct {
	last atomic.Uint64
}

// Begin issues a new ticket, superseding every earlier one.
func (s *Sequencer) Begin() Ticket {
	return Ticket(s.last.Add(1))
}

// Current reports whether t is the most recently issued ticket.
func (s *Sequencer) Current(t Ticket) bool {
	return t != 0 && uint64(t) == s.last.Load()
}

// Invalidate supersedes every outstanding ticket without issuing a new one.
func (s *Sequencer) Invalidate() {
	s.last.Add(1)
}
