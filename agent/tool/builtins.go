package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	ragx "github.com/fernandofuc/tistis-platform-sub010/agent/rag"
)

const (
	ToolKnowledgeSearch   = "knowledge.search"
	ToolBusinessLookup    = "business.lookup"
	ToolCreateAppointment = "create_appointment"

	CapabilityAppointments = "appointments"
)

// NewKnowledgeSearchTool exposes the RAG retriever to the graph. This is the
// only path business logic has into retrieval. A non-nil loader seeds the
// tenant partition on first use.
func NewKnowledgeSearchTool(retriever *ragx.Retriever, loader *ragx.Loader) Tool {
	return Tool{
		Name: ToolKnowledgeSearch,
		Info: &schema.ToolInfo{
			Name: ToolKnowledgeSearch,
			Desc: "Search the business knowledge base (articles, FAQs, policies, services) for grounding facts.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {Type: schema.String, Desc: "What to look up", Required: true},
				"top_n": {Type: schema.Integer, Desc: "Maximum results (default 5)"},
			}),
		},
		Invoke: func(ctx context.Context, args map[string]any, scope contractx.ToolScope) (any, error) {
			query, _ := args["query"].(string)
			topN := 5
			if raw, ok := args["top_n"].(float64); ok && raw > 0 {
				topN = int(raw)
			}
			if loader != nil {
				if err := loader.EnsureTenant(ctx, scope.TenantID); err != nil {
					return nil, err
				}
			}
			matches, err := retriever.Search(ctx, scope.TenantID, query, topN, 0)
			if err != nil {
				return nil, err
			}
			return matches, nil
		},
	}
}

// NewBusinessLookupTool answers structured catalog questions straight from
// the snapshot without a retrieval round-trip.
func NewBusinessLookupTool(snapshots contractx.SnapshotSource) Tool {
	return Tool{
		Name: ToolBusinessLookup,
		Info: &schema.ToolInfo{
			Name: ToolBusinessLookup,
			Desc: "Look up structured business data: services, branches, staff or policies.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"topic": {Type: schema.String, Desc: "One of: services, branches, staff, policies", Required: true},
			}),
		},
		Invoke: func(ctx context.Context, args map[string]any, scope contractx.ToolScope) (any, error) {
			bc, err := snapshots.Snapshot(ctx, scope.TenantID)
			if err != nil {
				return nil, err
			}
			topic, _ := args["topic"].(string)
			switch strings.ToLower(strings.TrimSpace(topic)) {
			case "services":
				return bc.Services, nil
			case "branches":
				return bc.Branches, nil
			case "staff":
				return bc.Staff, nil
			case "policies":
				return bc.Policies, nil
			default:
				return nil, fmt.Errorf("unknown lookup topic %q", topic)
			}
		},
	}
}

// NewCreateAppointmentTool books through the action layer owned by the
// business-data subsystem. Requires the appointments capability and is
// idempotent on the injected key.
func NewCreateAppointmentTool(bookings contractx.BookingClient) Tool {
	return Tool{
		Name:               ToolCreateAppointment,
		RequiredCapability: CapabilityAppointments,
		SideEffecting:      true,
		Info: &schema.ToolInfo{
			Name: ToolCreateAppointment,
			Desc: "Create an appointment for the customer.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"service": {Type: schema.String, Desc: "Service name", Required: true},
				"at":      {Type: schema.String, Desc: "Requested date and time", Required: true},
				"branch":  {Type: schema.String, Desc: "Branch name"},
			}),
		},
		Invoke: func(ctx context.Context, args map[string]any, scope contractx.ToolScope) (any, error) {
			service, _ := args["service"].(string)
			at, _ := args["at"].(string)
			branch, _ := args["branch"].(string)
			key, _ := args["idempotency_key"].(string)
			if strings.TrimSpace(service) == "" || strings.TrimSpace(at) == "" {
				return nil, fmt.Errorf("service and at are required")
			}

			confirmation, err := bookings.CreateAppointment(ctx, contractx.BookingRequest{
				TenantID:       scope.TenantID,
				Service:        service,
				Branch:         branch,
				At:             at,
				IdempotencyKey: key,
			})
			if err != nil {
				return nil, err
			}
			return confirmation, nil
		},
	}
}
