package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

const systemPrompt = `You classify one customer message for a customer-service assistant.
Respond with a strict JSON object holding exactly two fields: "intent", one of
"tool_seeking", "direct_answer" or "escalation", and "confidence", a number
between 0 and 1. No prose, no markdown.
Use "tool_seeking" when answering needs a lookup or an action such as a booking,
"escalation" when the customer asks for a human or is clearly upset,
and "direct_answer" otherwise.`

// historyWindow bounds how much conversation context goes to the classifier.
const historyWindow = 6

// Router classifies messages into intents with a small structured-output
// model call. Any model or schema failure degrades to the keyword heuristic,
// so Classify effectively cannot fail at runtime.
type Router struct {
	runner compose.Runnable[map[string]any, routeLLMOutput]
}

type routeLLMOutput struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence,omitempty"`
}

func New(ctx context.Context, chatModel einomodel.BaseChatModel) (*Router, error) {
	runner, err := compileRouteGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile route graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Router{runner: runner}, nil
}

func (r *Router) Classify(ctx context.Context, req contractx.RouteRequest) (contractx.Intent, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"message":         req.Message,
		"history":         recentHistory(req.History),
		"available_tools": req.AvailableTools,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal route payload: %v", contractx.ErrValidation, err)
	}

	out, err := r.runner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		log.Warn().Err(err).Msg("intent classification failed, using heuristic")
		return HeuristicIntent(req), nil
	}

	intent, ok := parseIntent(out.Intent)
	if !ok {
		log.Warn().Str("intent", out.Intent).Msg("classifier returned unknown intent, using heuristic")
		return HeuristicIntent(req), nil
	}
	return intent, nil
}

func parseIntent(raw string) (contractx.Intent, bool) {
	switch contractx.Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case contractx.IntentToolSeeking:
		return contractx.IntentToolSeeking, true
	case contractx.IntentDirectAnswer:
		return contractx.IntentDirectAnswer, true
	case contractx.IntentEscalation:
		return contractx.IntentEscalation, true
	default:
		return "", false
	}
}

var (
	escalationKeywords = []string{
		"human", "real person", "agent", "manager", "complaint", "lawyer",
		"hablar con alguien", "una persona",
	}
	toolKeywords = []string{
		"book", "appointment", "schedule", "reserve", "reservar", "cita",
		"available", "availability", "price", "cost", "how much", "cancel",
	}
)

// HeuristicIntent is the deterministic fallback classifier.
func HeuristicIntent(req contractx.RouteRequest) contractx.Intent {
	lower := strings.ToLower(req.Message)
	for _, kw := range escalationKeywords {
		if strings.Contains(lower, kw) {
			return contractx.IntentEscalation
		}
	}
	if len(req.AvailableTools) > 0 {
		for _, kw := range toolKeywords {
			if strings.Contains(lower, kw) {
				return contractx.IntentToolSeeking
			}
		}
	}
	return contractx.IntentDirectAnswer
}

func recentHistory(history []contractx.Turn) []map[string]string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	out := make([]map[string]string, 0, len(history))
	for _, turn := range history {
		out = append(out, map[string]string{"role": turn.Role, "content": turn.Content})
	}
	return out
}
