package dockerobserver

import (
	"sync"

	"github.com/aryan877/sre-sentinel/internal/domain"
)

// logBuffer is a bounded, append-only ring of recent log entries for one
// container, owned exclusively by that container's log pump (§3
// "Ownership").
type logBuffer struct {
	mu      sync.Mutex
	entries []domain.LogEntry
	limit   int
}

func newLogBuffer(limit int) *logBuffer {
	return &logBuffer{limit: limit}
}

func (b *logBuffer) append(entry domain.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entry)
	if len(b.entries) > b.limit {
		b.entries = b.entries[len(b.entries)-b.limit:]
	}
}

func (b *logBuffer) snapshot() []domain.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]domain.LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}
