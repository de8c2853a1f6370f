package sagalog

import (
	"context"
	"sync"
)

// Repository is the port (interface) for persisting saga log entries.
type Repository interface {
	// Save appends a row; entries are never updated.
	Save(ctx context.Context, entry *SagaLog) error
}

// Memory keeps entries in process. It backs tests and the dev profile.
type Memory struct {
	mu      sync.Mutex
	entries map[string][]*SagaLog
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]*SagaLog)}
}

func (m *Memory) Save(_ context.Context, entry *SagaLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.SagaID] = append(m.entries[entry.SagaID], &cp)
	return nil
}

// History returns every entry for sagaID, oldest first.
func (m *Memory) History(sagaID string) []*SagaLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*SagaLog(nil), m.entries[sagaID]...)
}

// SagaIDs lists every saga seen, in no particular order.
func (m *Memory) SagaIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}
