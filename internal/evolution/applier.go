package evolution

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smogili1/agentflow/internal/store"
	"github.com/smogili1/agentflow/internal/workflow"
)

// ApplyParams identifies the context an evolution is being applied under.
type ApplyParams struct {
	ExecutionID string
	NodeID      string
	Mode        Mode
}

// Applier applies a validated WorkflowEvolution to the stored workflow
// definition transactionally: snapshot, mutate a deep copy, persist, then
// append an audit record. Never mutates the caller's workflow in place.
type Applier struct {
	Store       store.Store
	HistoryRoot string // directory holding one subdirectory per workflow id
}

// NewApplier returns an Applier writing its history under historyRoot.
func NewApplier(st store.Store, historyRoot string) *Applier {
	return &Applier{Store: st, HistoryRoot: historyRoot}
}

// Apply performs the full apply-and-journal sequence for a validated
// evolution. current is the workflow as of the start of the self-reflect
// node's execution; evo must already have passed Validator.Validate.
func (a *Applier) Apply(ctx context.Context, current *workflow.Workflow, evo WorkflowEvolution, params ApplyParams) (before, after *workflow.Workflow, err error) {
	before = current.DeepCopy()

	working := current.DeepCopy()
	for _, m := range evo.Mutations {
		if m.Op == OpUpdateNodeConfig && pathIsUnsafe(m.Path) {
			return before, nil, fmt.Errorf("apply evolution: mutation path %q contains a prototype-pollution segment", m.Path)
		}
		applyMutation(working, m)
	}

	if err := a.Store.UpdateWorkflow(ctx, working); err != nil {
		return before, nil, fmt.Errorf("apply evolution: %w", err)
	}
	after = working.DeepCopy()

	record := Record{
		WorkflowID:     current.ID,
		ExecutionID:    params.ExecutionID,
		SelfNodeID:     params.NodeID,
		Mode:           params.Mode,
		Mutations:      evo.Mutations,
		BeforeSnapshot: before,
		AfterSnapshot:  after,
		Applied:        true,
		Reasoning:      evo.Reasoning,
		ExpectedImpact: evo.ExpectedImpact,
		RiskAssessment: evo.RiskAssessment,
	}
	if err := a.appendHistory(current.ID, record); err != nil {
		return before, after, fmt.Errorf("apply evolution: write history: %w", err)
	}

	return before, after, nil
}

// RecordRejected appends a Record for an evolution that failed validation
// (Applied=false), so the audit trail includes suggestions that were
// never applied.
func (a *Applier) RecordRejected(workflowID string, evo WorkflowEvolution, params ApplyParams, validationErrors []string) error {
	record := Record{
		WorkflowID:       workflowID,
		ExecutionID:      params.ExecutionID,
		SelfNodeID:       params.NodeID,
		Mode:             params.Mode,
		Mutations:        evo.Mutations,
		Applied:          false,
		Reasoning:        evo.Reasoning,
		ExpectedImpact:   evo.ExpectedImpact,
		RiskAssessment:   evo.RiskAssessment,
		ValidationErrors: validationErrors,
	}
	return a.appendHistory(workflowID, record)
}

func (a *Applier) appendHistory(workflowID string, record Record) error {
	dir := filepath.Join(a.HistoryRoot, workflowID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "history.jsonl")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	body, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(body, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHistory returns every Record appended for workflowID, oldest first,
// or an empty slice if no history file exists yet.
func (a *Applier) ReadHistory(workflowID string) ([]Record, error) {
	path := filepath.Join(a.HistoryRoot, workflowID, "history.jsonl")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("parse history line: %w", err)
		}
		out = append(out, record)
	}
	return out, scanner.Err()
}

// DescribeDiff summarizes the structural difference between before and
// after: added/removed/changed nodes and added/removed edges.
func DescribeDiff(before, after *workflow.Workflow) Diff {
	var diff Diff

	beforeNodes := make(map[string]workflow.Node, len(before.Nodes))
	for _, n := range before.Nodes {
		beforeNodes[n.ID] = n
	}
	afterNodes := make(map[string]bool, len(after.Nodes))
	for _, n := range after.Nodes {
		afterNodes[n.ID] = true
		prior, existed := beforeNodes[n.ID]
		switch {
		case !existed:
			diff.AddedNodes = append(diff.AddedNodes, n.ID)
		case !nodeEqual(prior, n):
			diff.ChangedNodes = append(diff.ChangedNodes, n.ID)
		}
	}
	for id := range beforeNodes {
		if !afterNodes[id] {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	beforeEdges := make(map[string]bool, len(before.Edges))
	for _, e := range before.Edges {
		beforeEdges[e.ID] = true
	}
	afterEdges := make(map[string]bool, len(after.Edges))
	for _, e := range after.Edges {
		afterEdges[e.ID] = true
		if !beforeEdges[e.ID] {
			diff.AddedEdges = append(diff.AddedEdges, e.ID)
		}
	}
	for id := range beforeEdges {
		if !afterEdges[id] {
			diff.RemovedEdges = append(diff.RemovedEdges, id)
		}
	}

	return diff
}

func nodeEqual(a, b workflow.Node) bool {
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return string(aj) == string(bj)
}
