package repository

import (
	"context"
	"sync"
	"time"

	"SigWatch/internal/domain/models"
)

// MemoryRunLog is an in-process RunLogSink bounded to a fixed number of
// entries. Oldest entries fall off when the cap is hit, independent of
// the retention trim.
type MemoryRunLog struct {
	mu      sync.RWMutex
	entries []*models.LogEntry
	max     int
}

// NewMemoryRunLog creates an in-memory run log capped at max entries.
func NewMemoryRunLog(max int) *MemoryRunLog {
	if max <= 0 {
		max = 1000
	}
	return &MemoryRunLog{max: max}
}

// Append stores one entry.
func (m *MemoryRunLog) Append(_ context.Context, entry *models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

// Recent returns up to limit entries for an entity, newest first.
func (m *MemoryRunLog) Recent(_ context.Context, entityID string, limit int) ([]*models.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]*models.LogEntry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].EntityID == entityID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

// TrimBefore drops entries older than cutoff and reports how many went.
func (m *MemoryRunLog) TrimBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var removed int64
	for _, e := range m.entries {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}

// Close is a no-op for the in-memory sink.
func (m *MemoryRunLog) Close() error { return nil }
