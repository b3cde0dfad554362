package promptcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

const usageBumpTimeout = 5 * time.Second

// Cache implements the prompt-cache semantics on top of a Store: at most one
// active row per (tenant, channel), monotonic versions, history-first writes
// and per-key write serialization. Reads are never blocked by in-flight
// writes; a stale read during regeneration is acceptable.
type Cache struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store) (*Cache, error) {
	if store == nil {
		return nil, errors.New("prompt store is required")
	}
	return &Cache{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// UpsertInput describes one successful generation to persist.
type UpsertInput struct {
	TenantID        string
	Channel         contractx.Channel
	Prompt          string
	SystemPrompt    string
	SourceHash      string
	TokensEstimated int
	Trigger         string
	LatencyMS       int64
}

// Get returns the active cached prompt for the key, or
// contract.ErrPromptNotFound when there is no usable row. Usage accounting is
// a detached best-effort side effect; its failure never fails the read.
func (c *Cache) Get(ctx context.Context, tenantID string, channel contractx.Channel) (*contractx.CachedPrompt, error) {
	row, err := c.store.Get(ctx, tenantID, channel)
	if err != nil {
		return nil, err
	}
	if row.Status != contractx.PromptActive {
		return nil, fmt.Errorf("%w: tenant=%s channel=%s status=%s", contractx.ErrPromptNotFound, tenantID, channel, row.Status)
	}

	go c.bumpUsage(context.WithoutCancel(ctx), tenantID, channel)

	return row, nil
}

func (c *Cache) bumpUsage(ctx context.Context, tenantID string, channel contractx.Channel) {
	ctx, cancel := context.WithTimeout(ctx, usageBumpTimeout)
	defer cancel()

	if err := c.store.BumpUsage(ctx, tenantID, channel, c.now()); err != nil {
		log.Warn().Err(err).
			Str("tenant_id", tenantID).
			Str("channel", string(channel)).
			Msg("prompt usage bump failed")
	}
}

// Upsert appends a success history entry, then replaces the active row,
// incrementing the version. Writers for the same key serialize on a per-key
// lock; last writer wins once serialized.
func (c *Cache) Upsert(ctx context.Context, in UpsertInput) (*contractx.CachedPrompt, error) {
	if strings.TrimSpace(in.TenantID) == "" || in.Channel == "" {
		return nil, fmt.Errorf("%w: tenant and channel are required", contractx.ErrValidation)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, fmt.Errorf("%w: generated prompt is empty", contractx.ErrValidation)
	}

	lock := c.keyLock(in.TenantID, in.Channel)
	lock.Lock()
	defer lock.Unlock()

	now := c.now().UTC()
	if err := c.store.AppendHistory(ctx, contractx.GenerationHistoryEntry{
		ID:              uuid.NewString(),
		TenantID:        in.TenantID,
		Channel:         in.Channel,
		Success:         true,
		LatencyMS:       in.LatencyMS,
		TokensEstimated: in.TokensEstimated,
		Trigger:         in.Trigger,
		CreatedAt:       now,
	}); err != nil {
		return nil, err
	}

	version := 1
	createdAt := now
	usage := int64(0)
	var lastUsed *time.Time
	if prev, err := c.store.Get(ctx, in.TenantID, in.Channel); err == nil {
		version = prev.Version + 1
		createdAt = prev.CreatedAt
		usage = prev.UsageCount
		lastUsed = prev.LastUsedAt
	} else if !errors.Is(err, contractx.ErrPromptNotFound) {
		return nil, err
	}

	row := &contractx.CachedPrompt{
		TenantID:        in.TenantID,
		Channel:         in.Channel,
		GeneratedPrompt: in.Prompt,
		SystemPrompt:    in.SystemPrompt,
		Version:         version,
		SourceHash:      in.SourceHash,
		Status:          contractx.PromptActive,
		TokensEstimated: in.TokensEstimated,
		UsageCount:      usage,
		LastUsedAt:      lastUsed,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	}
	if err := c.store.PutActive(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// RecordFailure appends a failure history entry. The cached row, if any, is
// left untouched: a stale-but-valid prompt beats none.
func (c *Cache) RecordFailure(ctx context.Context, tenantID string, channel contractx.Channel, trigger, cause string, latencyMS int64) error {
	return c.store.AppendHistory(ctx, contractx.GenerationHistoryEntry{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Channel:   channel,
		Success:   false,
		Error:     cause,
		LatencyMS: latencyMS,
		Trigger:   trigger,
		CreatedAt: c.now().UTC(),
	})
}

// LastKnown returns the row for the key regardless of status. Used by the
// stale-prompt fallback chain when regeneration fails; no usage accounting.
func (c *Cache) LastKnown(ctx context.Context, tenantID string, channel contractx.Channel) (*contractx.CachedPrompt, error) {
	return c.store.Get(ctx, tenantID, channel)
}

// Invalidate archives the row(s), forcing regeneration on next resolution.
// Empty channel invalidates every channel of the tenant. History is retained.
func (c *Cache) Invalidate(ctx context.Context, tenantID string, channel contractx.Channel) (int, error) {
	if strings.TrimSpace(tenantID) == "" {
		return 0, fmt.Errorf("%w: tenant id is required", contractx.ErrValidation)
	}
	n, err := c.store.Archive(ctx, tenantID, channel)
	if err != nil {
		return 0, err
	}
	log.Info().
		Str("tenant_id", tenantID).
		Str("channel", string(channel)).
		Int("archived", n).
		Msg("prompt cache invalidated")
	return n, nil
}

// NeedsRegeneration reports whether the key must be regenerated for the
// given fresh content hash: no row, non-active status, or hash mismatch.
func (c *Cache) NeedsRegeneration(ctx context.Context, tenantID string, channel contractx.Channel, sourceHash string) (bool, error) {
	row, err := c.store.Get(ctx, tenantID, channel)
	if errors.Is(err, contractx.ErrPromptNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if row.Status != contractx.PromptActive {
		return true, nil
	}
	return row.SourceHash != sourceHash, nil
}

// Status describes the cache state for one key, as exposed by the HTTP
// cache-status endpoint.
type Status struct {
	HasCachedPrompt   bool       `json:"hasCachedPrompt"`
	Version           int        `json:"version,omitempty"`
	LastGenerated     *time.Time `json:"lastGenerated,omitempty"`
	NeedsRegeneration bool       `json:"needsRegeneration"`
}

func (c *Cache) Status(ctx context.Context, tenantID string, channel contractx.Channel, sourceHash string) (Status, error) {
	row, err := c.store.Get(ctx, tenantID, channel)
	if errors.Is(err, contractx.ErrPromptNotFound) {
		return Status{NeedsRegeneration: true}, nil
	}
	if err != nil {
		return Status{}, err
	}

	stale := row.Status != contractx.PromptActive || row.SourceHash != sourceHash
	updated := row.UpdatedAt
	return Status{
		HasCachedPrompt:   row.Status == contractx.PromptActive,
		Version:           row.Version,
		LastGenerated:     &updated,
		NeedsRegeneration: stale,
	}, nil
}

// History exposes the generation audit log, newest first.
func (c *Cache) History(ctx context.Context, tenantID string, channel contractx.Channel, limit int) ([]contractx.GenerationHistoryEntry, error) {
	return c.store.History(ctx, tenantID, channel, limit)
}

func (c *Cache) keyLock(tenantID string, channel contractx.Channel) *sync.Mutex {
	key := storeKey(tenantID, channel)
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	return lock
}
