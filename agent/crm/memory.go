package crm

import (
	"context"
	"fmt"
	"sync"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// MemoryStore holds CRM data in memory, for tests and single-node deploys
// without Postgres.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]contractx.TenantInfo
	loyalty  map[string]contractx.LoyaltyState
	learning map[string]contractx.LearningContext
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:  make(map[string]contractx.TenantInfo),
		loyalty:  make(map[string]contractx.LoyaltyState),
		learning: make(map[string]contractx.LearningContext),
	}
}

func (s *MemoryStore) PutTenant(info contractx.TenantInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[info.ID] = info
}

func (s *MemoryStore) PutLoyalty(tenantID string, state contractx.LoyaltyState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loyalty[tenantID+"|"+state.LeadID] = state
}

func (s *MemoryStore) PutLearning(tenantID string, lc contractx.LearningContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.learning[tenantID] = lc
}

func (s *MemoryStore) Tenant(_ context.Context, tenantID string) (contractx.TenantInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.tenants[tenantID]
	if !ok {
		return contractx.TenantInfo{}, fmt.Errorf("%w: tenant=%s", ErrTenantNotFound, tenantID)
	}
	return info, nil
}

func (s *MemoryStore) Loyalty(_ context.Context, tenantID, leadID string) (contractx.LoyaltyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.loyalty[tenantID+"|"+leadID]
	if !ok {
		return contractx.LoyaltyState{LeadID: leadID}, nil
	}
	return state, nil
}

func (s *MemoryStore) Patterns(_ context.Context, tenantID string) (contractx.LearningContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.learning[tenantID], nil
}
