package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/store"
	"github.com/smogili1/agentflow/internal/workflow"
)

func linearWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		ID: "wf-1",
		Nodes: []workflow.Node{
			{ID: "in", Type: workflow.NodeInput},
			{ID: "a", Type: workflow.NodeClaudeAgent, Config: map[string]interface{}{"prompt": "a"}},
			{ID: "b", Type: workflow.NodeClaudeAgent, Config: map[string]interface{}{"prompt": "b"}},
			{ID: "out", Type: workflow.NodeOutput},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "in", Target: "a"},
			{ID: "e2", Source: "a", Target: "b"},
			{ID: "e3", Source: "b", Target: "out"},
		},
	}
}

func sourceSummary() *store.ExecutionSummary {
	return &store.ExecutionSummary{
		ExecutionID: "exec-source",
		WorkflowID:  "wf-1",
		Status:      "complete",
		NodeOutputs: map[string]interface{}{
			"in":  "hello",
			"a":   "output-a",
			"b":   "output-b",
			"out": "output-b",
		},
	}
}

func TestPlanReusesAncestorsAndReExecutesFromTarget(t *testing.T) {
	wf := linearWorkflow()
	plan, err := Plan(wf, nil, sourceSummary(), "b", "")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"b", "out"}, plan.ReExecuted)
	assert.ElementsMatch(t, []string{"in", "a"}, plan.Reused)
	assert.Empty(t, plan.New)
	assert.Equal(t, "output-a", plan.SeedOutputs["a"])
	assert.Equal(t, "hello", plan.SeedOutputs["in"])
	assert.NotContains(t, plan.SeedOutputs, "b")
}

func TestPlanRejectsUnreachedNode(t *testing.T) {
	wf := linearWorkflow()
	source := sourceSummary()
	delete(source.NodeOutputs, "b")

	_, err := Plan(wf, nil, source, "b", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recorded output")
}

func TestPlanTreatsAddedNodeAsNew(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, workflow.Node{ID: "extra", Type: workflow.NodeClaudeAgent})
	wf.Edges = append(wf.Edges, workflow.Edge{ID: "e4", Source: "a", Target: "extra"})

	plan, err := Plan(wf, nil, sourceSummary(), "b", "")
	require.NoError(t, err)

	assert.Contains(t, plan.New, "extra")
	assert.Contains(t, plan.ReExecuted, "extra")
	assert.NotContains(t, plan.Reused, "extra")
}

func TestPlanDemotesReusedNodeOnConfigChange(t *testing.T) {
	wf := linearWorkflow()
	sourceWorkflow := linearWorkflow()

	// "a" is an ancestor of "b" so it would otherwise be reused, but its
	// prompt changed since the source execution ran.
	for i := range wf.Nodes {
		if wf.Nodes[i].ID == "a" {
			wf.Nodes[i].Config = map[string]interface{}{"prompt": "a-v2"}
		}
	}

	plan, err := Plan(wf, sourceWorkflow, sourceSummary(), "b", "")
	require.NoError(t, err)

	assert.Contains(t, plan.ReExecuted, "a")
	assert.NotContains(t, plan.Reused, "a")
	assert.NotEmpty(t, plan.Warnings)
}

func TestSeedMarksReusedNodesComplete(t *testing.T) {
	wf := linearWorkflow()
	plan, err := Plan(wf, nil, sourceSummary(), "b", "")
	require.NoError(t, err)

	ec := Seed(wf, plan, "hello")

	out, ok := ec.Output("a")
	require.True(t, ok)
	assert.Equal(t, "output-a", out)
	assert.Equal(t, exec.StatusComplete, ec.State("a").Status)
	assert.Equal(t, exec.StatusPending, ec.State("b").Status)
}
