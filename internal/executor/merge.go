package executor

import (
	"context"
	"fmt"

	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/workflow"
)

// MergeStrategy is a merge node's join policy.
type MergeStrategy string

const (
	MergeWaitAll       MergeStrategy = "wait-all"
	MergeFirstComplete MergeStrategy = "first-complete"
)

// Merge joins concurrent branches. Readiness (when the engine dispatches a
// merge node at all) is entirely the scheduler's responsibility per the
// engine's branch-masking/merge rules; this executor only picks which
// already-completed predecessor's output(s) becomes the merge's own output,
// which is why it is a "trivial" executor by design.
type Merge struct{}

func (Merge) Validate(node workflow.Node) error {
	strategy, _ := node.Config["strategy"].(string)
	switch MergeStrategy(strategy) {
	case MergeWaitAll, MergeFirstComplete:
		return nil
	default:
		return &NodeConfigError{NodeID: node.ID, Message: fmt.Sprintf("merge node requires strategy wait-all or first-complete, got %q", strategy)}
	}
}

func (Merge) Execute(_ context.Context, node workflow.Node, ec *exec.Context, _ Services) (Result, error) {
	strategy, _ := node.Config["strategy"].(string)
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

	if MergeStrategy(strategy) == MergeFirstComplete {
		out, _ := ec.Output(complete[0])
		return Result{Output: out}, nil
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
