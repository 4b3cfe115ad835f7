package workflow

import "fmt"

// ValidationError reports a single structural problem found by Validate.
// Code is a short machine-readable tag (e.g. INPUT_NOT_CONNECTED); NodeID is
// set when the problem is attributable to a specific node.
type ValidationError struct {
	Code    string
	Message string
	NodeID  string
}

func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node %s)", e.Code, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationErrors is the full, unordered list of problems found. Validation
// never short-circuits: every check runs and every failure is reported.
type ValidationErrors []*ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	s := fmt.Sprintf("%d validation error(s):", len(ve))
	for _, e := range ve {
		s += "\n  - " + e.Error()
	}
	return s
}

// Validate runs every static, pre-execution structural check against w and
// returns the full list of problems found, or nil if the workflow is
// runnable. Checks never short-circuit on each other.
func Validate(w *Workflow) ValidationErrors {
	var errs ValidationErrors

	errs = append(errs, checkEdgeEndpoints(w)...)
	errs = append(errs, checkAcyclic(w)...)
	errs = append(errs, checkInputNode(w)...)
	errs = append(errs, checkOutputReachable(w)...)
	errs = append(errs, checkNoOrphans(w)...)
	errs = append(errs, checkUniqueNames(w)...)
	errs = append(errs, checkKnownTypes(w)...)
	errs = append(errs, checkNoSelfLoops(w)...)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkKnownTypes(w *Workflow) ValidationErrors {
	var errs ValidationErrors
	for _, n := range w.Nodes {
		if !n.Type.IsKnown() {
			errs = append(errs, &ValidationError{
				Code: "UNKNOWN_NODE_TYPE", Message: "unrecognized node type " + string(n.Type), NodeID: n.ID,
			})
		}
	}
	return errs
}

func checkEdgeEndpoints(w *Workflow) ValidationErrors {
	var errs ValidationErrors
	for _, e := range w.Edges {
		if _, ok := w.NodeByID(e.Source); !ok {
			errs = append(errs, &ValidationError{
				Code: "DANGLING_EDGE", Message: "edge source does not exist: " + e.Source, NodeID: e.Source,
			})
		}
		if _, ok := w.NodeByID(e.Target); !ok {
			errs = append(errs, &ValidationError{
				Code: "DANGLING_EDGE", Message: "edge target does not exist: " + e.Target, NodeID: e.Target,
			})
		}
	}
	return errs
}

func checkNoSelfLoops(w *Workflow) ValidationErrors {
	var errs ValidationErrors
	for _, e := range w.Edges {
		if e.Source == e.Target {
			errs = append(errs, &ValidationError{
				Code: "SELF_LOOP", Message: "edge forms a self-loop", NodeID: e.Source,
			})
		}
	}
	return errs
}

func checkInputNode(w *Workflow) ValidationErrors {
	if len(w.InputNodes()) == 0 {
		return ValidationErrors{{Code: "INPUT_NOT_CONNECTED", Message: "workflow has no input node"}}
	}
	return nil
}

func checkOutputReachable(w *Workflow) ValidationErrors {
	outputs := w.OutputNodes()
	if len(outputs) == 0 {
		return ValidationErrors{{Code: "OUTPUT_NOT_REACHABLE", Message: "workflow has no output node"}}
	}
	reachable := reachableFrom(w, inputIDs(w))
	var errs ValidationErrors
	for _, o := range outputs {
		if !reachable[o.ID] {
			errs = append(errs, &ValidationError{
				Code: "OUTPUT_NOT_REACHABLE", Message: "output node not reachable from any input node", NodeID: o.ID,
			})
		}
	}
	return errs
}

func checkNoOrphans(w *Workflow) ValidationErrors {
	var errs ValidationErrors
	for _, n := range w.Nodes {
		if n.Type == NodeInput {
			continue
		}
		if len(w.EdgesTo(n.ID)) == 0 {
			errs = append(errs, &ValidationError{
				Code: "ORPHANED_NODE", Message: "non-input node has no predecessor", NodeID: n.ID,
			})
		}
	}
	return errs
}

func checkUniqueNames(w *Workflow) ValidationErrors {
	seen := make(map[string]bool)
	var errs ValidationErrors
	for _, n := range w.Nodes {
		if n.Name == "" {
			continue
		}
		if seen[n.Name] {
			errs = append(errs, &ValidationError{
				Code: "DUPLICATE_NAME", Message: "duplicate node name: " + n.Name, NodeID: n.ID,
			})
			continue
		}
		seen[n.Name] = true
	}
	return errs
}

func inputIDs(w *Workflow) []string {
	var ids []string
	for _, n := range w.InputNodes() {
		ids = append(ids, n.ID)
	}
	return ids
}

func reachableFrom(w *Workflow, seeds []string) map[string]bool {
	visited := make(map[string]bool, len(w.Nodes))
	queue := append([]string{}, seeds...)
	for _, s := range seeds {
		visited[s] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range w.EdgesFrom(cur) {
			if !visited[e.Target] {
				visited[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return visited
}

// checkAcyclic performs a DFS-based cycle detection over the directed graph
// formed by w's edges (ignoring the rejection-feedback loop, which is a
// runtime phenomenon, not a structural edge).
func checkAcyclic(w *Workflow) ValidationErrors {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(w.Nodes))
	for _, n := range w.Nodes {
		color[n.ID] = white
	}

	var cyclic bool
	var visit func(id string)
	visit = func(id string) {
		if cyclic {
			return
		}
		color[id] = gray
		for _, e := range w.EdgesFrom(id) {
			switch color[e.Target] {
			case gray:
				cyclic = true
				return
			case white:
				visit(e.Target)
			}
			if cyclic {
				return
			}
		}
		color[id] = black
	}

	for _, n := range w.Nodes {
		if color[n.ID] == white {
			visit(n.ID)
			if cyclic {
				break
			}
		}
	}

	if cyclic {
		return ValidationErrors{{Code: "CYCLE_DETECTED", Message: "workflow graph contains a cycle"}}
	}
	return nil
}

// HasCycle reports whether the projected graph formed by nodes/edges
// contains a cycle. Used by the evolution validator when checking
// add-node/add-edge mutations against a working copy.
func HasCycle(w *Workflow) bool {
	return len(checkAcyclic(w)) > 0
}

// Ancestors returns the set of transitive predecessors of nodeID, not
// including nodeID itself.
func Ancestors(w *Workflow, nodeID string) map[string]bool {
	visited := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		for _, e := range w.EdgesTo(id) {
			if !visited[e.Source] {
				visited[e.Source] = true
				visit(e.Source)
			}
		}
	}
	visit(nodeID)
	return visited
}

// Descendants returns the set of transitive successors of nodeID, not
// including nodeID itself.
func Descendants(w *Workflow, nodeID string) map[string]bool {
	visited := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		for _, e := range w.EdgesFrom(id) {
			if !visited[e.Target] {
				visited[e.Target] = true
				visit(e.Target)
			}
		}
	}
	visit(nodeID)
	return visited
}
