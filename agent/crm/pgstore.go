// Package crm reads the customer-relationship side of the platform: tenant
// identity, loyalty state and learned conversation patterns. All tables are
// owned by other subsystems; this package only reads.
package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
)

type PGStore struct {
	db *bun.DB
}

type tenantRow struct {
	bun.BaseModel `bun:"table:tenants"`

	ID       string `bun:"id,pk"`
	Name     string `bun:"name"`
	Plan     string `bun:"plan"`
	Locale   string `bun:"locale"`
	Timezone string `bun:"timezone"`
}

type loyaltyRow struct {
	bun.BaseModel `bun:"table:loyalty_states"`

	TenantID   string `bun:"tenant_id,pk"`
	LeadID     string `bun:"lead_id,pk"`
	Tier       string `bun:"tier"`
	Points     int    `bun:"points"`
	VisitCount int    `bun:"visit_count"`
}

type learningRow struct {
	bun.BaseModel `bun:"table:ai_learning_patterns"`

	TenantID      string   `bun:"tenant_id,pk"`
	Patterns      []string `bun:"patterns,array"`
	PreferredTone string   `bun:"preferred_tone"`
}

func NewPGStore(db *bun.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Tenant(ctx context.Context, tenantID string) (contractx.TenantInfo, error) {
	if strings.TrimSpace(tenantID) == "" {
		return contractx.TenantInfo{}, errors.New("tenant id is empty")
	}

	row := new(tenantRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", tenantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.TenantInfo{}, fmt.Errorf("%w: tenant=%s", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return contractx.TenantInfo{}, fmt.Errorf("load tenant: %w", err)
	}
	return contractx.TenantInfo{
		ID:       row.ID,
		Name:     row.Name,
		Plan:     row.Plan,
		Locale:   row.Locale,
		Timezone: row.Timezone,
	}, nil
}

// Loyalty returns a zero-valued state for unknown leads; absence of loyalty
// history is not an error.
func (s *PGStore) Loyalty(ctx context.Context, tenantID, leadID string) (contractx.LoyaltyState, error) {
	row := new(loyaltyRow)
	err := s.db.NewSelect().
		Model(row).
		Where("tenant_id = ?", tenantID).
		Where("lead_id = ?", leadID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.LoyaltyState{LeadID: leadID}, nil
	}
	if err != nil {
		return contractx.LoyaltyState{}, fmt.Errorf("load loyalty state: %w", err)
	}
	return contractx.LoyaltyState{
		LeadID:     row.LeadID,
		Tier:       row.Tier,
		Points:     row.Points,
		VisitCount: row.VisitCount,
	}, nil
}

// Patterns returns an empty context for tenants the learning pipeline has not
// written yet.
func (s *PGStore) Patterns(ctx context.Context, tenantID string) (contractx.LearningContext, error) {
	row := new(learningRow)
	err := s.db.NewSelect().Model(row).Where("tenant_id = ?", tenantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return contractx.LearningContext{}, nil
	}
	if err != nil {
		return contractx.LearningContext{}, fmt.Errorf("load learning patterns: %w", err)
	}
	return contractx.LearningContext{
		Patterns:      row.Patterns,
		PreferredTone: row.PreferredTone,
	}, nil
}
