package exec

import (
	"testing"

	"github.com/smogili1/agentflow/internal/workflow"
)

func newTestContext() *Context {
	wf := &workflow.Workflow{
		ID: "wf-1",
		Nodes: []workflow.Node{
			{ID: "n1", Name: "Agent", Type: workflow.NodeClaudeAgent},
		},
	}
	return New("exec-1", wf, "", nil)
}

func TestInterpolateWholeOutput(t *testing.T) {
	c := newTestContext()
	c.RecordOutput("n1", "hello world")
	got := c.Interpolate("say: {{Agent}}")
	if got != "say: hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestInterpolateDottedPath(t *testing.T) {
	c := newTestContext()
	c.RecordOutput("n1", map[string]interface{}{
		"result": map[string]interface{}{"items": []interface{}{"a", "b", "c"}},
	})
	got := c.Interpolate("pick {{Agent.result.items.1}}")
	if got != "pick b" {
		t.Fatalf("got %q", got)
	}
}

func TestInterpolateUnresolvedLeftLiteral(t *testing.T) {
	c := newTestContext()
	got := c.Interpolate("value: {{Missing.field}}")
	if got != "value: {{Missing.field}}" {
		t.Fatalf("expected literal passthrough, got %q", got)
	}
}

func TestInterpolateVariable(t *testing.T) {
	c := newTestContext()
	c.SetVariable("node.n1.approved", true)
	got := c.Interpolate("approved={{node.n1.approved}}")
	if got != "approved=true" {
		t.Fatalf("got %q", got)
	}
}

func TestGetNestedValueArrayVsMapKey(t *testing.T) {
	v, ok := getNestedValue(map[string]interface{}{"0": "zero"}, []string{"0"})
	if !ok || v != "zero" {
		t.Fatalf("expected map string-key lookup to succeed, got %v %v", v, ok)
	}
	v, ok = getNestedValue([]interface{}{"a", "b"}, []string{"1"})
	if !ok || v != "b" {
		t.Fatalf("expected array index lookup to succeed, got %v %v", v, ok)
	}
	_, ok = getNestedValue([]interface{}{"a"}, []string{"5"})
	if ok {
		t.Fatalf("expected out-of-range index to fail")
	}
}
