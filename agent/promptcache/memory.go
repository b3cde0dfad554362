package promptcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// MemoryStore keeps prompt rows and history in memory. Used by tests and
// single-node deployments without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    map[string]*contractx.CachedPrompt
	history []contractx.GenerationHistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*contractx.CachedPrompt)}
}

func storeKey(tenantID string, channel contractx.Channel) string {
	return tenantID + "|" + string(channel)
}

func (s *MemoryStore) Get(_ context.Context, tenantID string, channel contractx.Channel) (*contractx.CachedPrompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[storeKey(tenantID, channel)]
	if !ok {
		return nil, fmt.Errorf("%w: tenant=%s channel=%s", contractx.ErrPromptNotFound, tenantID, channel)
	}
	cp := *row
	return &cp, nil
}

func (s *MemoryStore) PutActive(_ context.Context, p *contractx.CachedPrompt) error {
	if p == nil {
		return fmt.Errorf("%w: nil prompt row", contractx.ErrValidation)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.Status = contractx.PromptActive
	s.rows[storeKey(p.TenantID, p.Channel)] = &cp
	return nil
}

func (s *MemoryStore) Archive(_ context.Context, tenantID string, channel contractx.Channel) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	archived := 0
	for key, row := range s.rows {
		if row.TenantID != tenantID {
			continue
		}
		if channel != "" && row.Channel != channel {
			continue
		}
		if row.Status != contractx.PromptArchived {
			row.Status = contractx.PromptArchived
			archived++
		}
		s.rows[key] = row
	}
	return archived, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, e contractx.GenerationHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, e)
	return nil
}

func (s *MemoryStore) History(_ context.Context, tenantID string, channel contractx.Channel, limit int) ([]contractx.GenerationHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contractx.GenerationHistoryEntry, 0, limit)
	for i := len(s.history) - 1; i >= 0; i-- {
		e := s.history[i]
		if e.TenantID != tenantID || (channel != "" && e.Channel != channel) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) BumpUsage(_ context.Context, tenantID string, channel contractx.Channel, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[storeKey(tenantID, channel)]
	if !ok {
		return fmt.Errorf("%w: tenant=%s channel=%s", contractx.ErrPromptNotFound, tenantID, channel)
	}
	row.UsageCount++
	t := at.UTC()
	row.LastUsedAt = &t
	return nil
}
