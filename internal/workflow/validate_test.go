package workflow

import "testing"

func linear() *Workflow {
	return &Workflow{
		ID:   "wf-1",
		Name: "linear",
		Nodes: []Node{
			{ID: "in", Name: "Input", Type: NodeInput},
			{ID: "out", Name: "Output", Type: NodeOutput},
		},
		Edges: []Edge{
			{ID: "e1", Source: "in", Target: "out"},
		},
	}
}

func TestValidateLinearOK(t *testing.T) {
	if errs := Validate(linear()); errs != nil {
		t.Fatalf("expected no errors, got %v", errs)
	}
}

func TestValidateMissingInput(t *testing.T) {
	w := linear()
	w.Nodes = w.Nodes[1:]
	w.Edges = nil
	errs := Validate(w)
	if !hasCode(errs, "INPUT_NOT_CONNECTED") {
		t.Fatalf("expected INPUT_NOT_CONNECTED, got %v", errs)
	}
}

func TestValidateOrphanNode(t *testing.T) {
	w := linear()
	w.Nodes = append(w.Nodes, Node{ID: "stray", Name: "Stray", Type: NodeCondition})
	errs := Validate(w)
	if !hasCode(errs, "ORPHANED_NODE") {
		t.Fatalf("expected ORPHANED_NODE, got %v", errs)
	}
}

func TestValidateCycle(t *testing.T) {
	w := linear()
	w.Nodes = append(w.Nodes, Node{ID: "mid", Name: "Mid", Type: NodeCondition})
	w.Edges = []Edge{
		{ID: "e1", Source: "in", Target: "mid"},
		{ID: "e2", Source: "mid", Target: "out"},
		{ID: "e3", Source: "out", Target: "mid"},
	}
	errs := Validate(w)
	if !hasCode(errs, "CYCLE_DETECTED") {
		t.Fatalf("expected CYCLE_DETECTED, got %v", errs)
	}
}

func TestValidateDuplicateName(t *testing.T) {
	w := linear()
	w.Nodes = append(w.Nodes, Node{ID: "in2", Name: "Input", Type: NodeCondition})
	w.Edges = append(w.Edges, Edge{ID: "e2", Source: "in", Target: "in2"})
	errs := Validate(w)
	if !hasCode(errs, "DUPLICATE_NAME") {
		t.Fatalf("expected DUPLICATE_NAME, got %v", errs)
	}
}

func TestAncestorsDescendants(t *testing.T) {
	w := linear()
	w.Nodes = append(w.Nodes, Node{ID: "mid", Name: "Mid", Type: NodeCondition})
	w.Edges = []Edge{
		{ID: "e1", Source: "in", Target: "mid"},
		{ID: "e2", Source: "mid", Target: "out"},
	}
	anc := Ancestors(w, "out")
	if !anc["mid"] || !anc["in"] {
		t.Fatalf("expected mid and in as ancestors of out, got %v", anc)
	}
	desc := Descendants(w, "in")
	if !desc["mid"] || !desc["out"] {
		t.Fatalf("expected mid and out as descendants of in, got %v", desc)
	}
}

func hasCode(errs ValidationErrors, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}
