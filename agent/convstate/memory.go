package convstate

import (
	"context"
	"sync"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// MemoryStore is the in-process conversation store used in tests and in
// deployments without Redis configured.
type MemoryStore struct {
	mu    sync.RWMutex
	turns map[string][]contractx.Turn
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{turns: make(map[string][]contractx.Turn)}
}

func (m *MemoryStore) Recent(_ context.Context, conversationID string, limit int) ([]contractx.Turn, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	turns := m.turns[conversationID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]contractx.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, conversationID string, turns ...contractx.Turn) error {
	if conversationID == "" {
		return ErrInvalidConversation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := append(m.turns[conversationID], turns...)
	if len(merged) > maxStoredTurns {
		merged = merged[len(merged)-maxStoredTurns:]
	}
	m.turns[conversationID] = merged
	return nil
}
