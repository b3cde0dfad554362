package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var ErrSnapshotNotFound = errors.New("business snapshot not found")

// PGSource reads the materialized business context for a tenant from
// Postgres. The business-data subsystem owns the writes; this side only
// reads the latest payload.
type PGSource struct {
	db *bun.DB
}

type snapshotRow struct {
	bun.BaseModel `bun:"table:ai_business_snapshots"`

	TenantID  string          `bun:"tenant_id,pk"`
	Payload   json.RawMessage `bun:"payload,type:jsonb"`
	UpdatedAt time.Time       `bun:"updated_at"`
}

func NewPGSource(db *bun.DB) *PGSource {
	return &PGSource{db: db}
}

func (s *PGSource) Snapshot(ctx context.Context, tenantID string) (*BusinessContext, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errors.New("tenant id is empty")
	}

	row := new(snapshotRow)
	err := s.db.NewSelect().
		Model(row).
		Where("tenant_id = ?", tenantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant=%s", ErrSnapshotNotFound, tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var bc BusinessContext
	if err := json.Unmarshal(row.Payload, &bc); err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}
	return &bc, nil
}

// MemorySource holds snapshots in memory. Used by tests and single-node
// deployments without Postgres.
type MemorySource struct {
	mu        sync.RWMutex
	snapshots map[string]*BusinessContext
}

func NewMemorySource() *MemorySource {
	return &MemorySource{snapshots: make(map[string]*BusinessContext)}
}

func (s *MemorySource) Put(tenantID string, bc *BusinessContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[tenantID] = bc
}

func (s *MemorySource) Snapshot(_ context.Context, tenantID string) (*BusinessContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bc, ok := s.snapshots[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: tenant=%s", ErrSnapshotNotFound, tenantID)
	}
	return bc, nil
}
