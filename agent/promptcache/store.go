package promptcache

import (
	"context"
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// Store is the record-level persistence contract for cached prompts. The
// semantics (per-key serialization, version bumping, history-first writes)
// live in Cache; stores only move rows.
type Store interface {
	// Get returns the single row for the key regardless of status, or
	// contract.ErrPromptNotFound.
	Get(ctx context.Context, tenantID string, channel contractx.Channel) (*contractx.CachedPrompt, error)
	// PutActive replaces the row for the key with the given active row.
	PutActive(ctx context.Context, p *contractx.CachedPrompt) error
	// Archive marks the row(s) archived. Empty channel archives every
	// channel of the tenant. Returns the number of rows archived.
	Archive(ctx context.Context, tenantID string, channel contractx.Channel) (int, error)
	// AppendHistory appends one generation attempt to the audit log.
	AppendHistory(ctx context.Context, e contractx.GenerationHistoryEntry) error
	// History returns the most recent attempts, newest first.
	History(ctx context.Context, tenantID string, channel contractx.Channel, limit int) ([]contractx.GenerationHistoryEntry, error)
	// BumpUsage increments usage_count and sets last_used_at.
	BumpUsage(ctx context.Context, tenantID string, channel contractx.Channel, at time.Time) error
}
