package tool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

const defaultToolTimeout = 10 * time.Second

// Executor dispatches tool requests under capability gating and a bounded
// timeout. Failures become observations in the returned ToolResult, never
// errors: the specialist decides what to do with them.
type Executor struct {
	reg     *Registry
	timeout time.Duration
}

type ExecutorOption func(*Executor)

func WithToolTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func NewExecutor(reg *Registry, opts ...ExecutorOption) (*Executor, error) {
	if reg == nil {
		return nil, errors.New("tool registry is required")
	}
	e := &Executor{reg: reg, timeout: defaultToolTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Executor) Names() []string {
	return e.reg.Names()
}

func (e *Executor) Execute(ctx context.Context, req contractx.ToolRequest, scope contractx.ToolScope) contractx.ToolResult {
	t, ok := e.reg.get(req.Tool)
	if !ok {
		return contractx.ToolResult{
			Tool:        req.Tool,
			Error:       fmt.Sprintf("%v: tool %q is not registered", contractx.ErrCapabilityUnavailable, req.Tool),
			Unavailable: true,
		}
	}

	if !containsString(scope.AvailableTools, req.Tool) {
		return unavailableResult(req.Tool, "tool not available for this tenant")
	}
	if t.RequiredCapability != "" && !containsString(scope.EnabledCapabilities, t.RequiredCapability) {
		return unavailableResult(req.Tool, fmt.Sprintf("capability %q not enabled", t.RequiredCapability))
	}

	args := make(map[string]any, len(req.Args)+1)
	for k, v := range req.Args {
		args[k] = v
	}
	if t.SideEffecting {
		args["idempotency_key"] = IdempotencyKey(scope.ConversationID, scope.Intent, req.Tool)
	}

	toolCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := t.Invoke(toolCtx, args, scope)
	if err != nil {
		log.Warn().Err(err).
			Str("tool", req.Tool).
			Str("tenant_id", scope.TenantID).
			Msg("tool execution failed")
		return contractx.ToolResult{
			Tool:  req.Tool,
			Error: fmt.Sprintf("%v: %v", contractx.ErrToolExecution, err),
		}
	}
	return contractx.ToolResult{Tool: req.Tool, Result: out}
}

// IdempotencyKey derives a stable key from the conversation and intent so a
// retried turn replays the same side effect instead of duplicating it.
func IdempotencyKey(conversationID string, intent contractx.Intent, tool string) string {
	sum := sha256.Sum256([]byte(conversationID + "|" + string(intent) + "|" + tool))
	return hex.EncodeToString(sum[:])[:16]
}

func unavailableResult(tool, reason string) contractx.ToolResult {
	return contractx.ToolResult{
		Tool:        tool,
		Error:       fmt.Sprintf("%v: %s", contractx.ErrCapabilityUnavailable, reason),
		Unavailable: true,
	}
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
