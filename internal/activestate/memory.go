package activestate

import (
	"context"
	"sync"
)

// MemoryState is an in-process State for the memory store backend and for
// tests. Not suitable when more than one server instance runs.
type MemoryState struct {
	mu sync.Mutex
	id string
}

// NewMemoryState creates an empty in-process state.
func NewMemoryState() *MemoryState { return &MemoryState{} }

func (m *MemoryState) Activate(ctx context.Context, snippetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = snippetID
	return nil
}

func (m *MemoryState) Active(ctx context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != "", nil
}

func (m *MemoryState) Deactivate(ctx context.Context, snippetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == snippetID {
		m.id = ""
	}
	return nil
}

func (m *MemoryState) Close() error { return nil }
