package eventbus

import (
	"context"
	"sync"

	"github.com/aryan877/sre-sentinel/internal/domain"
)

// MemoryStore is the default, dependency-free Store: a capped ring kept
// in process memory. It satisfies the same Store interface a
// Redis-backed store does, so Bus semantics do not change with the
// backing (§4.9).
type MemoryStore struct {
	mu      sync.Mutex
	entries []domain.Event // newest first
	limit   int
}

// NewMemoryStore constructs a MemoryStore capped at limit entries
// (HistoryLimit if <= 0).
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = HistoryLimit
	}
	return &MemoryStore{limit: limit}
}

// Append prepends event, evicting the oldest entry past the cap.
func (m *MemoryStore) Append(_ context.Context, event domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append([]domain.Event{event}, m.entries...)
	if len(m.entries) > m.limit {
		m.entries = m.entries[:m.limit]
	}
	return nil
}

// History returns a defensive copy of the stored events, newest first.
func (m *MemoryStore) History(_ context.Context) ([]domain.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Event, len(m.entries))
	copy(out, m.entries)
	return out, nil
}
