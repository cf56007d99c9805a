package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/itinera-labs/itinera/agent/nodes"
)

// compileTurnGraph wires one conversation turn:
//
//	START -> load_state -> route_intent -+-> execute_tasks -+-> update_memory -> compose_reply -> END
//	                                     |                  +-> recover -------^
//	                                     +-> compose_reply (clarification)
func (o *Orchestrator) compileTurnGraph(ctx context.Context) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("load_state",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.LoadState(ctx, in, o.store, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_state: %w", err)
	}

	if err := graph.AddLambdaNode("route_intent",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RouteIntent(ctx, in, o.classifier, o.router, o.store, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node route_intent: %w", err)
	}

	if err := graph.AddLambdaNode("execute_tasks",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExecuteTasks(ctx, in, o.dispatcher, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_tasks: %w", err)
	}

	if err := graph.AddLambdaNode("recover",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Recover(ctx, in, o.dispatcher, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node recover: %w", err)
	}

	if err := graph.AddLambdaNode("update_memory",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.UpdateMemory(ctx, in, o.sink, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node update_memory: %w", err)
	}

	if err := graph.AddLambdaNode("compose_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.ComposeReply(ctx, in, o.composer, o.store, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compose_reply: %w", err)
	}

	routeBranch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("turn graph state is nil")
			}
			if in.Plan.Clarify {
				return "compose_reply", nil
			}
			return "execute_tasks", nil
		},
		map[string]bool{
			"execute_tasks": true,
			"compose_reply": true,
		},
	)
	if err := graph.AddBranch("route_intent", routeBranch); err != nil {
		return nil, fmt.Errorf("add route branch: %w", err)
	}

	executeBranch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("turn graph state is nil")
			}
			if in.Succeeded() {
				return "update_memory", nil
			}
			return "recover", nil
		},
		map[string]bool{
			"update_memory": true,
			"recover":       true,
		},
	)
	if err := graph.AddBranch("execute_tasks", executeBranch); err != nil {
		return nil, fmt.Errorf("add execute branch: %w", err)
	}

	edges := [][2]string{
		{compose.START, "load_state"},
		{"load_state", "route_intent"},
		{"update_memory", "compose_reply"},
		{"recover", "compose_reply"},
		{"compose_reply", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx,
		compose.WithGraphName("orchestrator.turn"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
	)
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}
