package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// Specialist is the reasoning stage of the response graph. While the tool
// budget allows it plans tool calls through a tool-bound model; once forced
// final (budget spent, or a repair pass) it answers through a structured
// JSON graph so the message is guaranteed parseable.
type Specialist struct {
	toolRunner       compose.Runnable[map[string]any, *schema.Message]
	structuredRunner compose.Runnable[map[string]any, specialistLLMOutput]
	allowedTools     map[string]struct{}
}

type specialistLLMOutput struct {
	Message string `json:"message"`
}

func New(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	toolInfos []*schema.ToolInfo,
) (*Specialist, error) {
	structuredRunner, err := compileStructuredGraph(ctx, chatModel)
	if err != nil {
		return nil, fmt.Errorf("%w: compile structured specialist graph: %v", contractx.ErrModelInvoke, err)
	}

	toolModel, err := chatModel.WithTools(toolInfos)
	if err != nil {
		return nil, fmt.Errorf("%w: bind specialist tools: %v", contractx.ErrModelInvoke, err)
	}
	toolRunner, err := compileToolPlanningGraph(ctx, toolModel)
	if err != nil {
		return nil, fmt.Errorf("%w: compile tool planning graph: %v", contractx.ErrModelInvoke, err)
	}

	allowedTools := make(map[string]struct{}, len(toolInfos))
	for _, info := range toolInfos {
		if info == nil || strings.TrimSpace(info.Name) == "" {
			continue
		}
		allowedTools[info.Name] = struct{}{}
	}

	return &Specialist{
		toolRunner:       toolRunner,
		structuredRunner: structuredRunner,
		allowedTools:     allowedTools,
	}, nil
}

func (s *Specialist) Run(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	if req.ForceFinal || len(req.Feedback) > 0 {
		return s.runStructured(ctx, req)
	}
	return s.runToolPlanning(ctx, req)
}

func (s *Specialist) runToolPlanning(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	input, err := marshalInput(req, "")
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	msg, err := s.toolRunner.Invoke(ctx, map[string]any{
		"system_prompt": req.SystemPrompt,
		"input":         input,
	})
	if err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: tool planning invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: empty tool planning response", contractx.ErrSchemaViolation)
	}

	toolRequests, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}
	if len(toolRequests) == 0 {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist returned neither message nor tool calls", contractx.ErrSchemaViolation)
		}
		return contractx.SpecialistResponse{Message: content}, nil
	}

	for _, tr := range toolRequests {
		if _, ok := s.allowedTools[tr.Tool]; !ok {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: tool %q is not registered", contractx.ErrSchemaViolation, tr.Tool)
		}
	}
	return contractx.SpecialistResponse{ToolRequests: toolRequests}, nil
}

func (s *Specialist) runStructured(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	mode := "finalize"
	if len(req.Feedback) > 0 {
		mode = "repair"
	}

	input, err := marshalInput(req, mode)
	if err != nil {
		return contractx.SpecialistResponse{}, err
	}

	out, err := s.structuredRunner.Invoke(ctx, map[string]any{
		"system_prompt": req.SystemPrompt,
		"input":         input,
	})
	if err != nil {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist invoke: %v", contractx.ErrModelInvoke, err)
	}

	message := strings.TrimSpace(out.Message)
	if message == "" {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist message is empty", contractx.ErrSchemaViolation)
	}
	return contractx.SpecialistResponse{Message: message}, nil
}

func marshalInput(req contractx.SpecialistRequest, mode string) (string, error) {
	payload := map[string]any{
		"customer_message": req.Message,
		"history":          req.History,
		"observations":     req.Observations,
	}
	if mode != "" {
		payload["mode"] = mode
	}
	if len(req.Feedback) > 0 {
		payload["fix_these_issues"] = req.Feedback
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal specialist payload: %v", contractx.ErrValidation, err)
	}
	return string(input), nil
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		tool := strings.TrimSpace(call.Function.Name)
		if tool == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, tool, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{Tool: tool, Args: args})
	}
	return reqs, nil
}
