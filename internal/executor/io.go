package executor

import (
	"context"

	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/workflow"
)

// Input returns the workflow's top-level input verbatim. It has no
// predecessors (invariant: exactly one input node, never targeted by an
// edge) and no configuration to validate.
type Input struct{}

func (Input) Validate(workflow.Node) error { return nil }

func (Input) Execute(_ context.Context, _ workflow.Node, ec *exec.Context, _ Services) (Result, error) {
	return Result{Output: ec.Input()}, nil
}

// Output returns its single predecessor's output, or a node-name-to-output
// mapping if it has more than one active predecessor. It has no side
// effects and nominates no output handle.
type Output struct{}

func (Output) Validate(workflow.Node) error { return nil }

func (Output) Execute(_ context.Context, node workflow.Node, ec *exec.Context, _ Services) (Result, error) {
	preds := ec.ActivePredecessors(node.ID)
	var complete []string
	for _, p := range preds {
		if ec.State(p).Status == exec.StatusComplete {
			complete = append(complete, p)
		}
	}
	if len(complete) == 0 {
		return Result{}, nil
	}
	if len(complete) == 1 {
		out, _ := ec.Output(complete[0])
		return Result{Output: out}, nil
	}
	mapped := make(map[string]interface{}, len(complete))
	for _, p := range complete {
		out, _ := ec.Output(p)
		mapped[ec.NodeName(p)] = out
	}
	return Result{Output: mapped}, nil
}
