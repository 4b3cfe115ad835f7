// Package workflow defines the immutable workflow definition: nodes, edges,
// and the closed set of node type tags the engine understands.
package workflow

// NodeType is the closed set of node type tags the engine understands.
type NodeType string

const (
	NodeInput       NodeType = "input"
	NodeOutput      NodeType = "output"
	NodeClaudeAgent NodeType = "claude-agent"
	NodeCodexAgent  NodeType = "codex-agent"
	NodeCondition   NodeType = "condition"
	NodeMerge       NodeType = "merge"
	NodeJavascript  NodeType = "javascript"
	NodeApproval    NodeType = "approval"
	NodeSelfReflect NodeType = "self-reflect"
)

// KnownNodeTypes lists every recognized node type tag.
func KnownNodeTypes() []NodeType {
	return []NodeType{
		NodeInput, NodeOutput, NodeClaudeAgent, NodeCodexAgent,
		NodeCondition, NodeMerge, NodeJavascript, NodeApproval, NodeSelfReflect,
	}
}

// IsKnown reports whether t is one of the recognized node types.
func (t NodeType) IsKnown() bool {
	for _, k := range KnownNodeTypes() {
		if k == t {
			return true
		}
	}
	return false
}

// Position is the canvas position of a node. It is opaque to the engine and
// carried only for round-tripping through an editor UI.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single vertex in a workflow graph. Config holds type-specific
// configuration; recognized keys depend on Type and are interpreted by the
// corresponding executor, not by this package.
type Node struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Type     NodeType               `json:"type"`
	Position Position               `json:"position"`
	Config   map[string]interface{} `json:"config"`
}

// Edge connects a source node to a target node. Data flows along an edge iff
// the source completes successfully and, when the source nominates an output
// handle, the edge's SourceHandle either matches it or is empty (an empty
// handle matches every nominated handle).
type Edge struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	Target        string `json:"target"`
	SourceHandle  string `json:"sourceHandle,omitempty"`
	TargetHandle  string `json:"targetHandle,omitempty"`
}

// Workflow is an immutable (per execution) graph definition.
type Workflow struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	WorkingDirectory   string `json:"workingDirectory,omitempty"`
	Nodes             []Node `json:"nodes"`
	Edges             []Edge `json:"edges"`
}

// NodeByID returns the node with the given id, or false if absent.
func (w *Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeByName returns the node with the given name, or false if absent.
func (w *Workflow) NodeByName(name string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return Node{}, false
}

// EdgesFrom returns every edge whose source is nodeID, in declaration order.
func (w *Workflow) EdgesFrom(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesTo returns every edge whose target is nodeID, in declaration order.
func (w *Workflow) EdgesTo(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// InputNodes returns every node of type NodeInput.
func (w *Workflow) InputNodes() []Node {
	return w.nodesOfType(NodeInput)
}

// OutputNodes returns every node of type NodeOutput.
func (w *Workflow) OutputNodes() []Node {
	return w.nodesOfType(NodeOutput)
}

func (w *Workflow) nodesOfType(t NodeType) []Node {
	var out []Node
	for _, n := range w.Nodes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// DeepCopy returns an independent copy of the workflow, safe to mutate
// without affecting the receiver. Used by the evolution applier to apply
// mutations to a working copy before persisting.
func (w *Workflow) DeepCopy() *Workflow {
	cp := &Workflow{
		ID:               w.ID,
		Name:             w.Name,
		Description:      w.Description,
		WorkingDirectory: w.WorkingDirectory,
		Nodes:            make([]Node, len(w.Nodes)),
		Edges:            make([]Edge, len(w.Edges)),
	}
	for i, n := range w.Nodes {
		cp.Nodes[i] = n
		cp.Nodes[i].Config = deepCopyMap(n.Config)
	}
	copy(cp.Edges, w.Edges)
	return cp
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]interface{}:
			out[k] = deepCopyMap(vv)
		case []interface{}:
			sl := make([]interface{}, len(vv))
			copy(sl, vv)
			out[k] = sl
		default:
			out[k] = v
		}
	}
	return out
}
