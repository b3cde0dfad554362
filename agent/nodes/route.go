package respondernode

import (
	"context"
	"fmt"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// Route classifies the sanitized message into an intent. The router is
// expected to degrade to its own heuristic rather than fail; an error here
// is a programming error, not a model outage.
func Route(ctx context.Context, in *GraphState, router contractx.Router) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	intent, err := router.Classify(ctx, contractx.RouteRequest{
		Message:        in.Sanitized,
		History:        in.In.History,
		AvailableTools: in.In.AvailableTools,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: route intent: %v", contractx.ErrModelInvoke, err)
	}

	in.Intent = intent
	if intent == contractx.IntentEscalation {
		in.Escalated = true
		in.EscalationReason = "customer_request"
	}
	return in, nil
}
