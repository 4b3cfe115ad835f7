// Package replay computes a reused/re-executed/new-node partition for
// resuming a workflow from a prior execution's recorded outputs, and seeds
// the fresh exec.Context those outputs feed into. It has no direct teacher
// analog — the teacher's own graph/replay.go records and hash-verifies
// individual I/O calls for deterministic re-play of the very same run,
// while this planner instead diffs two workflow definitions (the one the
// source execution ran against and the one about to run) to decide which
// already-computed outputs a fresh run from a chosen node may safely
// reuse — so it is built directly from the distilled spec's description,
// using only workflow.Ancestors/Descendants (already relied on by
// internal/engine for the same graph-diffing class of problem) rather than
// any third-party library.
package replay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/ids"
	"github.com/smogili1/agentflow/internal/store"
	"github.com/smogili1/agentflow/internal/workflow"
)

// PlanError reports that a replay request could not be planned at all —
// distinct from a Plan's Warnings, which describe nodes the planner
// demoted but still produced a usable plan for.
type PlanError struct {
	Message string
}

func (e *PlanError) Error() string { return e.Message }

// Plan is the partition computed for one replay request.
type Plan struct {
	ExecutionID      string
	WorkflowID       string
	WorkingDirectory string

	// Reused lists node ids whose recorded output from the source
	// execution is seeded into SeedOutputs and will not be re-run.
	Reused []string

	// ReExecuted lists node ids that must run: fromNodeID, its transitive
	// descendants in the current workflow, and any reused candidate
	// demoted by a configuration change.
	ReExecuted []string

	// New lists node ids present in the current workflow but not in the
	// source execution's recorded outputs.
	New []string

	SeedOutputs map[string]interface{}
	Warnings    []string
}

// Plan computes the reused/re-executed/new partition for resuming from
// fromNodeID. current is the workflow the new run will execute against;
// sourceWorkflow is the workflow definition the source execution actually
// ran, used only to detect configuration drift on candidate reused nodes
// (the caller resolves it — e.g. from the evolution history journal, or
// from the stored workflow itself when it has not changed since).
func Plan(current, sourceWorkflow *workflow.Workflow, source *store.ExecutionSummary, fromNodeID, workingDirectoryOverride string) (*Plan, error) {
	if source == nil {
		return nil, &PlanError{Message: "source execution summary is nil"}
	}
	if _, ok := current.NodeByID(fromNodeID); !ok {
		return nil, &PlanError{Message: fmt.Sprintf("node %s not found in the current workflow", fromNodeID)}
	}
	if _, ok := source.NodeOutputs[fromNodeID]; !ok {
		return nil, &PlanError{Message: fmt.Sprintf("node %s has no recorded output in the source execution (not reached, or the run was interrupted before it completed)", fromNodeID)}
	}

	descendants := workflow.Descendants(current, fromNodeID)
	reExecuted := map[string]bool{fromNodeID: true}
	for id := range descendants {
		reExecuted[id] = true
	}

	plan := &Plan{
		ExecutionID:      ids.NewExecutionID(),
		WorkflowID:       current.ID,
		WorkingDirectory: resolveWorkingDirectory(workingDirectoryOverride, source, current),
		SeedOutputs:      make(map[string]interface{}),
	}

	for _, n := range current.Nodes {
		if reExecuted[n.ID] {
			continue
		}
		sourceOutput, hadOutput := source.NodeOutputs[n.ID]
		if !hadOutput {
			plan.New = append(plan.New, n.ID)
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("node %s was added since the source execution; re-executing", n.ID))
			reExecuted[n.ID] = true
			continue
		}
		if sourceWorkflow != nil && configChanged(current, sourceWorkflow, n.ID) {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("node %s configuration changed since the source execution; re-executing", n.ID))
			reExecuted[n.ID] = true
			continue
		}
		plan.Reused = append(plan.Reused, n.ID)
		plan.SeedOutputs[n.ID] = sourceOutput
	}

	for _, n := range current.Nodes {
		if reExecuted[n.ID] {
			plan.ReExecuted = append(plan.ReExecuted, n.ID)
		}
	}

	return plan, nil
}

func configChanged(current, sourceWorkflow *workflow.Workflow, nodeID string) bool {
	curNode, ok := current.NodeByID(nodeID)
	if !ok {
		return true
	}
	srcNode, ok := sourceWorkflow.NodeByID(nodeID)
	if !ok {
		return true
	}
	curJSON, err1 := json.Marshal(curNode.Config)
	srcJSON, err2 := json.Marshal(srcNode.Config)
	if err1 != nil || err2 != nil {
		return true
	}
	return !bytes.Equal(curJSON, srcJSON)
}

func resolveWorkingDirectory(override string, source *store.ExecutionSummary, current *workflow.Workflow) string {
	if override != "" {
		return override
	}
	if current.WorkingDirectory != "" {
		return current.WorkingDirectory
	}
	_ = source
	return ""
}

// Seed builds a fresh exec.Context for plan's ExecutionID against wf, with
// every reused node's output pre-populated and its status marked complete
// so the engine's readiness computation treats it as already satisfied.
func Seed(wf *workflow.Workflow, plan *Plan, input interface{}) *exec.Context {
	ec := exec.New(plan.ExecutionID, wf, plan.WorkingDirectory, input)
	for nodeID, output := range plan.SeedOutputs {
		ec.RecordOutput(nodeID, output)
		ec.SetStatus(nodeID, exec.StatusComplete)
	}
	return ec
}
