package api

import (
	"sync"

	"github.com/JakeFAU/floodcam/internal/capture"
)

// DefaultRecentVisits bounds the visit history kept by Status.
const DefaultRecentVisits = 128

// Status is a capture.Observer that keeps the latest cycle summary and a
// bounded history of marker visits for the status server.
type Status struct {
	mu      sync.RWMutex
	latest  capture.Summary
	have    bool
	cycles  int
	recent  []capture.Snapshot
	maxKeep int
}

// NewStatus returns a tracker that keeps at most keep visits. keep <= 0 uses
// DefaultRecentVisits.
func NewStatus(keep int) *Status {
	if keep <= 0 {
		keep = DefaultRecentVisits
	}
	return &Status{maxKeep: keep}
}

// ObserveVisit implements capture.Observer.
func (s *Status) ObserveVisit(snap capture.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, snap)
	if over := len(s.recent) - s.maxKeep; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

// ObserveCycle implements capture.Observer.
func (s *Status) ObserveCycle(summary capture.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = summary
	s.have = true
	s.cycles++
}

// Latest returns the summary of the last finished cycle.
func (s *Status) Latest() (capture.Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.have
}

// Cycles reports how many cycles have finished.
func (s *Status) Cycles() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}

// Recent returns up to n of the newest visits, oldest first. n <= 0 returns
// the whole history.
func (s *Status) Recent(n int) []capture.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && n < len(s.recent) {
		start = len(s.recent) - n
	}
	out := make([]capture.Snapshot, len(s.recent)-start)
	copy(out, s.recent[start:])
	return out
}
