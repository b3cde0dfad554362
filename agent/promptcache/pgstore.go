package promptcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// PGStore persists cached prompts and generation history in Postgres.
type PGStore struct {
	db *bun.DB
}

type cachedPromptRow struct {
	bun.BaseModel `bun:"table:ai_cached_prompts"`

	TenantID        string     `bun:"tenant_id,pk"`
	Channel         string     `bun:"channel,pk"`
	GeneratedPrompt string     `bun:"generated_prompt"`
	SystemPrompt    string     `bun:"system_prompt,nullzero"`
	Version         int        `bun:"version"`
	SourceHash      string     `bun:"source_hash"`
	Status          string     `bun:"status"`
	TokensEstimated int        `bun:"tokens_estimated"`
	UsageCount      int64      `bun:"usage_count"`
	LastUsedAt      *time.Time `bun:"last_used_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at"`
}

type generationHistoryRow struct {
	bun.BaseModel `bun:"table:ai_prompt_generations"`

	ID              string    `bun:"id,pk"`
	TenantID        string    `bun:"tenant_id"`
	Channel         string    `bun:"channel"`
	Success         bool      `bun:"success"`
	Error           string    `bun:"error,nullzero"`
	LatencyMS       int64     `bun:"latency_ms"`
	TokensEstimated int       `bun:"tokens_estimated"`
	Trigger         string    `bun:"trigger"`
	CreatedAt       time.Time `bun:"created_at"`
}

func NewPGStore(db *bun.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, tenantID string, channel contractx.Channel) (*contractx.CachedPrompt, error) {
	row := new(cachedPromptRow)
	err := s.db.NewSelect().
		Model(row).
		Where("tenant_id = ?", tenantID).
		Where("channel = ?", string(channel)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant=%s channel=%s", contractx.ErrPromptNotFound, tenantID, channel)
	}
	if err != nil {
		return nil, fmt.Errorf("select cached prompt: %w", err)
	}
	return row.toPrompt(), nil
}

func (s *PGStore) PutActive(ctx context.Context, p *contractx.CachedPrompt) error {
	if p == nil {
		return fmt.Errorf("%w: nil prompt row", contractx.ErrValidation)
	}

	row := fromPrompt(p)
	row.Status = string(contractx.PromptActive)

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (tenant_id, channel) DO UPDATE").
		Set("generated_prompt = EXCLUDED.generated_prompt").
		Set("system_prompt = EXCLUDED.system_prompt").
		Set("version = EXCLUDED.version").
		Set("source_hash = EXCLUDED.source_hash").
		Set("status = EXCLUDED.status").
		Set("tokens_estimated = EXCLUDED.tokens_estimated").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert cached prompt: %w", err)
	}
	return nil
}

func (s *PGStore) Archive(ctx context.Context, tenantID string, channel contractx.Channel) (int, error) {
	q := s.db.NewUpdate().
		Model((*cachedPromptRow)(nil)).
		Set("status = ?", string(contractx.PromptArchived)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("tenant_id = ?", tenantID).
		Where("status != ?", string(contractx.PromptArchived))
	if channel != "" {
		q = q.Where("channel = ?", string(channel))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive cached prompts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("archive rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PGStore) AppendHistory(ctx context.Context, e contractx.GenerationHistoryEntry) error {
	row := &generationHistoryRow{
		ID:              e.ID,
		TenantID:        e.TenantID,
		Channel:         string(e.Channel),
		Success:         e.Success,
		Error:           e.Error,
		LatencyMS:       e.LatencyMS,
		TokensEstimated: e.TokensEstimated,
		Trigger:         e.Trigger,
		CreatedAt:       e.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("append generation history: %w", err)
	}
	return nil
}

func (s *PGStore) History(ctx context.Context, tenantID string, channel contractx.Channel, limit int) ([]contractx.GenerationHistoryEntry, error) {
	var rows []generationHistoryRow
	q := s.db.NewSelect().
		Model(&rows).
		Where("tenant_id = ?", tenantID).
		OrderExpr("created_at DESC")
	if channel != "" {
		q = q.Where("channel = ?", string(channel))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("select generation history: %w", err)
	}

	out := make([]contractx.GenerationHistoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, contractx.GenerationHistoryEntry{
			ID:              r.ID,
			TenantID:        r.TenantID,
			Channel:         contractx.Channel(r.Channel),
			Success:         r.Success,
			Error:           r.Error,
			LatencyMS:       r.LatencyMS,
			TokensEstimated: r.TokensEstimated,
			Trigger:         r.Trigger,
			CreatedAt:       r.CreatedAt,
		})
	}
	return out, nil
}

func (s *PGStore) BumpUsage(ctx context.Context, tenantID string, channel contractx.Channel, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*cachedPromptRow)(nil)).
		Set("usage_count = usage_count + 1").
		Set("last_used_at = ?", at.UTC()).
		Where("tenant_id = ?", tenantID).
		Where("channel = ?", string(channel)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bump prompt usage: %w", err)
	}
	return nil
}

func (r *cachedPromptRow) toPrompt() *contractx.CachedPrompt {
	return &contractx.CachedPrompt{
		TenantID:        r.TenantID,
		Channel:         contractx.Channel(r.Channel),
		GeneratedPrompt: r.GeneratedPrompt,
		SystemPrompt:    r.SystemPrompt,
		Version:         r.Version,
		SourceHash:      r.SourceHash,
		Status:          contractx.PromptStatus(r.Status),
		TokensEstimated: r.TokensEstimated,
		UsageCount:      r.UsageCount,
		LastUsedAt:      r.LastUsedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func fromPrompt(p *contractx.CachedPrompt) *cachedPromptRow {
	return &cachedPromptRow{
		TenantID:        p.TenantID,
		Channel:         string(p.Channel),
		GeneratedPrompt: p.GeneratedPrompt,
		SystemPrompt:    p.SystemPrompt,
		Version:         p.Version,
		SourceHash:      p.SourceHash,
		Status:          string(p.Status),
		TokensEstimated: p.TokensEstimated,
		UsageCount:      p.UsageCount,
		LastUsedAt:      p.LastUsedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
