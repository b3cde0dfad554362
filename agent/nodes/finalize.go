package respondernode

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	promptgenx "github.com/fernandofuc/tistis-platform-sub010/agent/promptgen"
)

// capabilityGapOffer is appended when a requested action was gated off for
// the tenant, so the customer always gets a path forward.
const capabilityGapOffer = "If you'd like, I can connect you with our team so they can take care of that for you."

// Finalize assembles the graph result: conversational signals, escalation
// flags and run accounting. It is deterministic and never calls a model.
func Finalize(in *GraphState, now func() time.Time) (contractx.GraphResult, error) {
	if in == nil {
		return contractx.GraphResult{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	response := strings.TrimSpace(in.Response)
	if response == "" {
		return contractx.GraphResult{}, fmt.Errorf("%w: empty response after quality stage", contractx.ErrSchemaViolation)
	}

	if len(in.CapabilityGaps) > 0 && !strings.Contains(response, capabilityGapOffer) {
		response = response + "\n\n" + capabilityGapOffer
	}

	return contractx.GraphResult{
		Response:         response,
		Intent:           in.Intent,
		Signals:          extractSignals(in),
		ToolsInvoked:     in.ToolsInvoked,
		LatencyMS:        now().Sub(in.StartedAt).Milliseconds(),
		TokensUsed:       promptgenx.EstimateTokens(in.In.Prompt) + promptgenx.EstimateTokens(response),
		Escalated:        in.Escalated,
		EscalationReason: in.EscalationReason,
	}, nil
}

var priceKeywords = []string{"price", "cost", "how much", "precio", "cuánto", "cuanto"}

func extractSignals(in *GraphState) []contractx.Signal {
	var signals []contractx.Signal

	lower := strings.ToLower(in.Sanitized)
	for _, kw := range priceKeywords {
		if strings.Contains(lower, kw) {
			signals = append(signals, contractx.Signal{Name: "price_inquiry", Weight: 0.5})
			break
		}
	}

	for _, obs := range in.Observations {
		if obs.Tool == "create_appointment" && obs.Error == "" && !obs.Unavailable {
			signals = append(signals, contractx.Signal{Name: "appointment_booked", Weight: 1.0})
			break
		}
	}

	if in.Escalated {
		signals = append(signals, contractx.Signal{Name: "escalation", Weight: 0.8})
	}
	if len(in.CapabilityGaps) > 0 {
		signals = append(signals, contractx.Signal{Name: "capability_gap", Weight: 0.3})
	}
	return signals
}
