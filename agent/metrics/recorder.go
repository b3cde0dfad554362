package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// PGRecorder persists per-response metrics for the analytics pipeline.
type PGRecorder struct {
	db *bun.DB
}

type responseMetricRow struct {
	bun.BaseModel `bun:"table:ai_response_metrics"`

	ID           string    `bun:"id,pk"`
	TenantID     string    `bun:"tenant_id"`
	Channel      string    `bun:"channel"`
	Intent       string    `bun:"intent"`
	LatencyMS    int64     `bun:"latency_ms"`
	TokensUsed   int       `bun:"tokens_used"`
	Escalated    bool      `bun:"escalated"`
	Preview      bool      `bun:"preview"`
	ToolsInvoked []string  `bun:"tools_invoked,array"`
	CreatedAt    time.Time `bun:"created_at"`
}

func NewPGRecorder(db *bun.DB) *PGRecorder {
	return &PGRecorder{db: db}
}

func (r *PGRecorder) Record(ctx context.Context, m contractx.ResponseMetric) error {
	row := &responseMetricRow{
		ID:           m.ID,
		TenantID:     m.TenantID,
		Channel:      string(m.Channel),
		Intent:       string(m.Intent),
		LatencyMS:    m.LatencyMS,
		TokensUsed:   m.TokensUsed,
		Escalated:    m.Escalated,
		Preview:      m.Preview,
		ToolsInvoked: m.ToolsInvoked,
		CreatedAt:    m.CreatedAt,
	}
	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert response metric: %w", err)
	}
	return nil
}

// MemoryRecorder collects metrics in process, for tests and local runs.
type MemoryRecorder struct {
	mu      sync.Mutex
	metrics []contractx.ResponseMetric
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(_ context.Context, m contractx.ResponseMetric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
	return nil
}

func (r *MemoryRecorder) All() []contractx.ResponseMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contractx.ResponseMetric, len(r.metrics))
	copy(out, r.metrics)
	return out
}
