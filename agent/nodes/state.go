package respondernode

import (
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// GraphState is the mutable state threaded through the response graph. Each
// node receives it, mutates its own fields and passes it on; the same state
// shape serves preview and production runs.
type GraphState struct {
	In        contractx.GraphInput
	Sanitized string
	Intent    contractx.Intent

	Response       string
	ToolsInvoked   []string
	Observations   []contractx.ToolResult
	CapabilityGaps []string

	QualityIssues []string
	Repaired      bool

	Escalated        bool
	EscalationReason string

	StartedAt time.Time
}

func (s *GraphState) toolScope() contractx.ToolScope {
	return contractx.ToolScope{
		TenantID:            s.In.TenantID,
		ConversationID:      s.In.ConversationID,
		Intent:              s.Intent,
		AvailableTools:      s.In.AvailableTools,
		EnabledCapabilities: s.In.EnabledCapabilities,
	}
}
