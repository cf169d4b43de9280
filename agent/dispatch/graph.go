package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

func (d *Dispatcher) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[Turn, Outcome], error) {
	graph := compose.NewGraph[Turn, Outcome]()

	if err := graph.AddLambdaNode("validate_turn",
		compose.InvokableLambda(func(ctx context.Context, in Turn) (*turnState, error) {
			if in.Answer == nil {
				return nil, fmt.Errorf("%w: turn answer is nil", contractx.ErrValidation)
			}
			if in.Channel == "" {
				return nil, fmt.Errorf("%w: channel is required", contractx.ErrValidation)
			}
			return &turnState{Turn: in}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_turn: %w", err)
	}

	if err := graph.AddLambdaNode("execute_tools",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (*turnState, error) {
			return d.executeTools(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_tools: %w", err)
	}

	if err := graph.AddLambdaNode("follow_up",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (Outcome, error) {
			return d.followUp(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node follow_up: %w", err)
	}

	if err := graph.AddLambdaNode("passthrough",
		compose.InvokableLambda(func(ctx context.Context, in *turnState) (Outcome, error) {
			return Outcome{
				Reply:    strings.TrimSpace(in.Turn.Answer.Content),
				Executed: in.Executed,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node passthrough: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *turnState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
			}
			if len(in.Results) > 0 {
				return "follow_up", nil
			}
			return "passthrough", nil
		},
		map[string]bool{
			"follow_up":   true,
			"passthrough": true,
		},
	)

	if err := graph.AddEdge(compose.START, "validate_turn"); err != nil {
		return nil, fmt.Errorf("add edge start->validate_turn: %w", err)
	}
	if err := graph.AddEdge("validate_turn", "execute_tools"); err != nil {
		return nil, fmt.Errorf("add edge validate_turn->execute_tools: %w", err)
	}
	if err := graph.AddBranch("execute_tools", branch); err != nil {
		return nil, fmt.Errorf("add branch execute_tools: %w", err)
	}
	if err := graph.AddEdge("follow_up", compose.END); err != nil {
		return nil, fmt.Errorf("add edge follow_up->end: %w", err)
	}
	if err := graph.AddEdge("passthrough", compose.END); err != nil {
		return nil, fmt.Errorf("add edge passthrough->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("dispatch.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile dispatch graph: %w", err)
	}
	return runner, nil
}
