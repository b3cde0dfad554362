package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

// Tool is one named action the specialist stage may request. The set is
// closed at startup: NewRegistry validates every entry so an unknown or
// duplicate name fails construction, not a conversation.
type Tool struct {
	Name               string
	RequiredCapability string
	// SideEffecting tools receive an idempotency key so retried turns do
	// not duplicate the action.
	SideEffecting bool
	Info          *schema.ToolInfo
	Invoke        func(ctx context.Context, args map[string]any, scope contractx.ToolScope) (any, error)
}

type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	if len(tools) == 0 {
		return nil, errors.New("registry requires at least one tool")
	}

	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, errors.New("tool name is empty")
		}
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		if t.Invoke == nil {
			return nil, fmt.Errorf("tool %q has no invoke func", name)
		}
		if t.Info == nil || t.Info.Name != name {
			return nil, fmt.Errorf("tool %q has mismatched schema info", name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// Infos returns the tool schemas in registration order, for model binding.
func (r *Registry) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		infos = append(infos, t.Info)
	}
	return infos
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

func (r *Registry) get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}
