package responder

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
	nodex "github.com/fernandofuc/tistis-platform-sub010/agent/nodes"
)

// compileResponseGraph wires the five pipeline stages. The quality branch
// either finalizes directly or takes the single repair pass first; both
// paths terminate the graph.
func (s *Service) compileResponseGraph(
	ctx context.Context,
) (compose.Runnable[contractx.GraphInput, contractx.GraphResult], error) {
	graph := compose.NewGraph[contractx.GraphInput, contractx.GraphResult]()

	if err := graph.AddLambdaNode("initialize",
		compose.InvokableLambda(func(ctx context.Context, in contractx.GraphInput) (*nodex.GraphState, error) {
			return nodex.Initialize(in, s.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node initialize: %w", err)
	}

	if err := graph.AddLambdaNode("route_intent",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Route(ctx, in, s.router)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node route_intent: %w", err)
	}

	if err := graph.AddLambdaNode("run_specialist",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunSpecialist(ctx, in, s.specialist, s.tools)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_specialist: %w", err)
	}

	if err := graph.AddLambdaNode("quality_check",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.QualityCheck(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node quality_check: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (contractx.GraphResult, error) {
			return nodex.Finalize(in, s.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	if err := graph.AddLambdaNode("repair_and_finalize",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (contractx.GraphResult, error) {
			repaired, err := nodex.Repair(ctx, in, s.specialist)
			if err != nil {
				return contractx.GraphResult{}, err
			}
			return nodex.Finalize(repaired, s.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node repair_and_finalize: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
			}
			if len(in.QualityIssues) > 0 {
				return "repair_and_finalize", nil
			}
			return "finalize", nil
		},
		map[string]bool{
			"repair_and_finalize": true,
			"finalize":            true,
		},
	)

	edges := [][2]string{
		{compose.START, "initialize"},
		{"initialize", "route_intent"},
		{"route_intent", "run_specialist"},
		{"run_specialist", "quality_check"},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}
	if err := graph.AddBranch("quality_check", branch); err != nil {
		return nil, fmt.Errorf("add quality branch: %w", err)
	}
	if err := graph.AddEdge("finalize", compose.END); err != nil {
		return nil, fmt.Errorf("add edge finalize->end: %w", err)
	}
	if err := graph.AddEdge("repair_and_finalize", compose.END); err != nil {
		return nil, fmt.Errorf("add edge repair->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("responder.response_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile response graph: %w", err)
	}
	return runner, nil
}
