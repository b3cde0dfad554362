package contract

import (
	"time"

	snapshotx "github.com/fernandofuc/tistis-platform-sub010/agent/snapshot"
)

type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
	ChannelWeb       Channel = "web"
	ChannelVoice     Channel = "voice"
)

// IsVoice reports whether prompts for this channel use the fixed-structure
// voice template instead of free-form synthesis.
func (c Channel) IsVoice() bool {
	return c == ChannelVoice
}

type Intent string

const (
	IntentToolSeeking  Intent = "tool_seeking"
	IntentDirectAnswer Intent = "direct_answer"
	IntentEscalation   Intent = "escalation"
)

type PromptStatus string

const (
	PromptActive     PromptStatus = "active"
	PromptGenerating PromptStatus = "generating"
	PromptFailed     PromptStatus = "failed"
	PromptArchived   PromptStatus = "archived"
)

// CachedPrompt is the single cached generated prompt for a (tenant, channel)
// pair. At most one active row exists per key; Version increments only on
// successful regeneration.
type CachedPrompt struct {
	TenantID        string       `json:"tenant_id"`
	Channel         Channel      `json:"channel"`
	GeneratedPrompt string       `json:"generated_prompt"`
	SystemPrompt    string       `json:"system_prompt,omitempty"`
	Version         int          `json:"version"`
	SourceHash      string       `json:"source_hash"`
	Status          PromptStatus `json:"status"`
	TokensEstimated int          `json:"tokens_estimated"`
	UsageCount      int64        `json:"usage_count"`
	LastUsedAt      *time.Time   `json:"last_used_at,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// GenerationHistoryEntry is an append-only audit record of one generation
// attempt, success or failure.
type GenerationHistoryEntry struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Channel         Channel   `json:"channel"`
	Success         bool      `json:"success"`
	Error           string    `json:"error,omitempty"`
	LatencyMS       int64     `json:"latency_ms"`
	TokensEstimated int       `json:"tokens_estimated"`
	Trigger         string    `json:"trigger"`
	CreatedAt       time.Time `json:"created_at"`
}

type Turn struct {
	Role    string    `json:"role"` // "user" | "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at,omitempty"`
}

// GraphInput is the request-scoped input to the response graph. Preview and
// production runs build it identically except for IsPreview.
type GraphInput struct {
	TenantID            string   `json:"tenant_id"`
	Message             string   `json:"message"`
	Channel             Channel  `json:"channel"`
	ProfileType         string   `json:"profile_type,omitempty"`
	History             []Turn   `json:"history,omitempty"`
	IsPreview           bool     `json:"is_preview"`
	Prompt              string   `json:"prompt"`
	SystemPrompt        string   `json:"system_prompt,omitempty"`
	AvailableTools      []string `json:"available_tools,omitempty"`
	EnabledCapabilities []string `json:"enabled_capabilities,omitempty"`
	ConversationID      string   `json:"conversation_id,omitempty"`
	LeadID              string   `json:"lead_id,omitempty"`
}

// Signal is a weighted event extracted from a conversation turn, consumed by
// lead scoring downstream.
type Signal struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

type GraphResult struct {
	Response         string   `json:"response"`
	Intent           Intent   `json:"intent"`
	Signals          []Signal `json:"signals,omitempty"`
	ToolsInvoked     []string `json:"tools_invoked,omitempty"`
	LatencyMS        int64    `json:"latency_ms"`
	TokensUsed       int      `json:"tokens_used"`
	Escalated        bool     `json:"escalated"`
	EscalationReason string   `json:"escalation_reason,omitempty"`
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is an observation surfaced back to the specialist stage.
// Execution failures land in Error, never as hard failures; Unavailable marks
// capability-gated rejections so finalize can offer an alternative.
type ToolResult struct {
	Tool        string `json:"tool"`
	Result      any    `json:"result,omitempty"`
	Error       string `json:"error,omitempty"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// ToolScope carries the per-request gating context for tool execution.
type ToolScope struct {
	TenantID            string
	ConversationID      string
	Intent              Intent
	AvailableTools      []string
	EnabledCapabilities []string
}

// ResolvedPrompt is the outcome of GetOptimizedPrompt.
type ResolvedPrompt struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	FromCache    bool   `json:"from_cache"`
	Version      int    `json:"version"`
}

type TenantInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Plan     string `json:"plan,omitempty"`
	Locale   string `json:"locale,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type LoyaltyState struct {
	LeadID     string `json:"lead_id"`
	Tier       string `json:"tier,omitempty"`
	Points     int    `json:"points"`
	VisitCount int    `json:"visit_count"`
}

type LearningContext struct {
	Patterns      []string `json:"patterns,omitempty"`
	PreferredTone string   `json:"preferred_tone,omitempty"`
}

// FullContext is the joined output of the concurrent context loads. Degraded
// lists the non-critical loads that failed and were skipped.
type FullContext struct {
	Tenant       TenantInfo
	Business     *snapshotx.BusinessContext
	Loyalty      *LoyaltyState
	Learning     *LearningContext
	Conversation []Turn
	Degraded     []string
}

type LearningUpdate struct {
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Intent         Intent    `json:"intent"`
	Message        string    `json:"message"`
	Response       string    `json:"response"`
	Signals        []Signal  `json:"signals,omitempty"`
	At             time.Time `json:"at"`
}

type ResponseMetric struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Channel      Channel   `json:"channel"`
	Intent       Intent    `json:"intent"`
	LatencyMS    int64     `json:"latency_ms"`
	TokensUsed   int       `json:"tokens_used"`
	Escalated    bool      `json:"escalated"`
	Preview      bool      `json:"preview"`
	ToolsInvoked []string  `json:"tools_invoked,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type RouteRequest struct {
	Message        string   `json:"message"`
	History        []Turn   `json:"history,omitempty"`
	AvailableTools []string `json:"available_tools,omitempty"`
}

type SpecialistRequest struct {
	Message      string       `json:"message"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	History      []Turn       `json:"history,omitempty"`
	Observations []ToolResult `json:"observations,omitempty"`
	Feedback     []string     `json:"feedback,omitempty"`
	// ForceFinal forbids further tool requests; set once the per-turn tool
	// budget is spent.
	ForceFinal bool `json:"force_final,omitempty"`
}

type SpecialistResponse struct {
	Message      string        `json:"message"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
}

type BookingRequest struct {
	TenantID       string `json:"tenant_id"`
	LeadID         string `json:"lead_id,omitempty"`
	Service        string `json:"service"`
	Branch         string `json:"branch,omitempty"`
	StaffID        string `json:"staff_id,omitempty"`
	At             string `json:"at"`
	IdempotencyKey string `json:"idempotency_key"`
}

type BookingConfirmation struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}
