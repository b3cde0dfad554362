package respondernode

import (
	"context"
	"fmt"
	"strings"
	"sync"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// maxToolCalls is the per-turn tool budget. Once spent, the specialist is
// forced to answer with whatever observations it has.
const maxToolCalls = 5

// RunSpecialist drives the reason/act loop: the specialist either answers or
// requests tools; requested tools run concurrently within an iteration and
// their observations feed the next one. Unavailable tools become capability
// gaps for finalize, never hard failures.
func RunSpecialist(
	ctx context.Context,
	in *GraphState,
	specialist contractx.Specialist,
	exec contractx.ToolExecutor,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	budget := maxToolCalls
	req := contractx.SpecialistRequest{
		Message:      in.Sanitized,
		SystemPrompt: specialistSystemPrompt(in),
		History:      in.In.History,
	}

	for {
		resp, err := specialist.Run(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("%w: specialist run: %v", contractx.ErrModelInvoke, err)
		}

		if len(resp.ToolRequests) == 0 {
			message := strings.TrimSpace(resp.Message)
			if message == "" {
				return nil, fmt.Errorf("%w: specialist returned neither message nor tool requests", contractx.ErrSchemaViolation)
			}
			in.Response = message
			return in, nil
		}
		if req.ForceFinal {
			return nil, fmt.Errorf("%w: specialist requested tools after budget exhaustion", contractx.ErrSchemaViolation)
		}

		calls := resp.ToolRequests
		if len(calls) > budget {
			calls = calls[:budget]
		}
		budget -= len(calls)

		results := executeConcurrently(ctx, exec, calls, in.toolScope())
		for _, res := range results {
			in.ToolsInvoked = append(in.ToolsInvoked, res.Tool)
			in.Observations = append(in.Observations, res)
			if res.Unavailable {
				in.CapabilityGaps = append(in.CapabilityGaps, res.Tool)
			}
		}

		req.Observations = append(req.Observations, results...)
		req.ForceFinal = budget <= 0
	}
}

func executeConcurrently(
	ctx context.Context,
	exec contractx.ToolExecutor,
	calls []contractx.ToolRequest,
	scope contractx.ToolScope,
) []contractx.ToolResult {
	results := make([]contractx.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call contractx.ToolRequest) {
			defer wg.Done()
			results[i] = exec.Execute(ctx, call, scope)
		}(i, call)
	}
	wg.Wait()
	return results
}

func specialistSystemPrompt(in *GraphState) string {
	var b strings.Builder
	b.WriteString(in.In.Prompt)
	if extra := strings.TrimSpace(in.In.SystemPrompt); extra != "" {
		b.WriteString("\n\n")
		b.WriteString(extra)
	}
	return b.String()
}
