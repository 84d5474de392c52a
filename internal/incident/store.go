// Package incident implements the C6 state machine: detection,
// context gathering, diagnosis, remediation, verification, and
// narration.
package incident

import (
	"sort"
	"sync"

	"github.com/aryan877/sre-sentinel/internal/domain"
)

// Store holds the in-memory incident list, single-writer (the pipeline)
// and multi-reader (REST/WebSocket handlers), handing out immutable
// snapshots (§5 "Shared-resource policy").
type Store struct {
	mu        sync.RWMutex
	incidents map[string]domain.Incident
	order     []string
}

// NewStore constructs an empty incident store.
func NewStore() *Store {
	return &Store{incidents: make(map[string]domain.Incident)}
}

// Put inserts or replaces an incident by id, preserving first-seen
// ordering on insert.
func (s *Store) Put(inc domain.Incident) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.incidents[inc.ID]; !exists {
		s.order = append(s.order, inc.ID)
	}
	s.incidents[inc.ID] = inc
}

// Get returns a copy of one incident by id.
func (s *Store) Get(id string) (domain.Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	return inc, ok
}

// Snapshot returns all incidents, oldest-opened first.
func (s *Store) Snapshot() []domain.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Incident, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.incidents[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out
}
