package contract

import (
	"context"

	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

// Synthesizer is the opaque generative-text backend used for prompt
// generation. Implementations must honor ctx deadlines.
type Synthesizer interface {
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Router classifies a message into an intent.
type Router interface {
	Classify(ctx context.Context, req RouteRequest) (Intent, error)
}

// Specialist is the reasoning stage: it either answers or requests tools.
type Specialist interface {
	Run(ctx context.Context, req SpecialistRequest) (SpecialistResponse, error)
}

// ToolExecutor dispatches a single tool request under the given scope.
// Failures are returned inside ToolResult, never as errors.
type ToolExecutor interface {
	Execute(ctx context.Context, req ToolRequest, scope ToolScope) ToolResult
	Names() []string
}

type TenantStore interface {
	Tenant(ctx context.Context, tenantID string) (TenantInfo, error)
}

// SnapshotSource yields the read-only aggregated business context for a
// tenant. The snapshot is recomputed by the business-data subsystem, never
// mutated here.
type SnapshotSource interface {
	Snapshot(ctx context.Context, tenantID string) (*snapshotx.BusinessContext, error)
}

type LoyaltyStore interface {
	Loyalty(ctx context.Context, tenantID, leadID string) (LoyaltyState, error)
}

type LearningStore interface {
	Patterns(ctx context.Context, tenantID string) (LearningContext, error)
}

type ConversationStore interface {
	Recent(ctx context.Context, conversationID string, limit int) ([]Turn, error)
	Append(ctx context.Context, conversationID string, turns ...Turn) error
}

type LearningQueue interface {
	EnqueueLearningUpdate(ctx context.Context, update LearningUpdate) error
}

type MetricsRecorder interface {
	Record(ctx context.Context, m ResponseMetric) error
}

// BookingClient is the action layer owned by the business-data subsystem.
// CreateAppointment must be idempotent on IdempotencyKey.
type BookingClient interface {
	CreateAppointment(ctx context.Context, req BookingRequest) (BookingConfirmation, error)
}
