package evolution

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/smogili1/agentflow/internal/workflow"
)

// Options configures one Validate call.
type Options struct {
	Scope        []Scope // nil means no restriction
	MaxMutations int     // 0 means the default of 10
	SelfNodeID   string  // non-empty enables self-protection
}

// Validator checks a proposed WorkflowEvolution's mutations against the
// schema registry, the configured scope, cycle-introduction, and
// self-protection rules. Never short-circuits: every mutation is checked
// and every failure collected.
type Validator struct {
	Schemas Registry
}

// NewValidator returns a Validator using the default built-in schema
// registry.
func NewValidator() *Validator {
	return &Validator{Schemas: DefaultRegistry()}
}

// Validate runs every check against proposal and returns whether it is
// valid, the full list of error messages (empty if valid), and a sanitized
// copy of the evolution (non-object mutations dropped, missing
// reasoning/expectedImpact defaulted to "").
func (v *Validator) Validate(wf *workflow.Workflow, proposal WorkflowEvolution, opts Options) (bool, []string, WorkflowEvolution) {
	sanitized := WorkflowEvolution{
		Reasoning:      proposal.Reasoning,
		ExpectedImpact: proposal.ExpectedImpact,
		RiskAssessment: proposal.RiskAssessment,
	}

	maxMutations := opts.MaxMutations
	if maxMutations <= 0 {
		maxMutations = 10
	}

	var errs []string

	// working copy the mutation checks project add/remove ops onto, for
	// cycle detection and existence checks that must see prior mutations
	// in the same batch.
	working := wf.DeepCopy()

	for i, m := range proposal.Mutations {
		if m.Op == "" {
			errs = append(errs, mutationError(i, m, "unknown mutation op"))
			continue
		}
		if i >= maxMutations {
			errs = append(errs, mutationError(i, m, "exceeds maxMutations"))
			continue
		}

		scope, err := v.checkMutation(working, m, opts.SelfNodeID)
		if err != "" {
			errs = append(errs, mutationError(i, m, err))
			continue
		}
		if !scopeAllowed(opts.Scope, scope) {
			errs = append(errs, mutationError(i, m, "mutation scope "+string(scope)+" is not in the allowed scope list"))
			continue
		}

		applyMutation(working, m)
		sanitized.Mutations = append(sanitized.Mutations, m)
	}

	if workflow.HasCycle(working) {
		errs = append(errs, "evolution introduces a cycle")
	}

	return len(errs) == 0, errs, sanitized
}

func scopeAllowed(allowed []Scope, s Scope) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}

func mutationError(i int, m Mutation, msg string) string {
	return "mutation " + strconv.Itoa(i) + " (" + string(m.Op) + "): " + msg
}

// checkMutation validates one mutation against the current (possibly
// already-projected) workflow and returns its inferred scope, or a
// non-empty error message.
func (v *Validator) checkMutation(wf *workflow.Workflow, m Mutation, selfNodeID string) (Scope, string) {
	if selfNodeID != "" && touchesSelfNode(m, selfNodeID) {
		return "", "Cannot modify the self-reflect node"
	}

	switch m.Op {
	case OpUpdateNodeConfig:
		return v.checkUpdateNodeConfig(wf, m)
	case OpUpdatePrompt:
		return v.checkUpdatePrompt(wf, m)
	case OpUpdateModel:
		return v.checkUpdateModel(wf, m)
	case OpAddNode:
		return v.checkAddNode(wf, m)
	case OpRemoveNode:
		return v.checkRemoveNode(wf, m, selfNodeID)
	case OpAddEdge:
		return v.checkAddEdge(wf, m, selfNodeID)
	case OpRemoveEdge:
		return v.checkRemoveEdge(wf, m, selfNodeID)
	case OpUpdateWorkflowSetting:
		return v.checkUpdateWorkflowSetting(m)
	default:
		return "", "unrecognized op " + string(m.Op)
	}
}

func touchesSelfNode(m Mutation, selfNodeID string) bool {
	switch m.Op {
	case OpUpdateNodeConfig, OpUpdatePrompt, OpUpdateModel, OpRemoveNode:
		return m.TargetNodeID == selfNodeID
	case OpAddEdge:
		return m.Source == selfNodeID || m.Target == selfNodeID
	case OpAddNode:
		return m.ConnectFrom == selfNodeID || m.ConnectTo == selfNodeID
	default:
		return false
	}
}

var prototypePollutionSegments = map[string]bool{
	"__proto__": true, "prototype": true, "constructor": true,
}

func pathIsUnsafe(path string) bool {
	for _, seg := range strings.Split(path, ".") {
		if prototypePollutionSegments[seg] {
			return true
		}
	}
	return false
}

func inferScopeFromPath(path string) Scope {
	switch {
	case strings.HasPrefix(path, "userQuery") || strings.HasPrefix(path, "systemPrompt"):
		return ScopePrompts
	case strings.HasPrefix(path, "model"):
		return ScopeModels
	case strings.HasPrefix(path, "tools"):
		return ScopeTools
	default:
		return ScopeParameters
	}
}

func (v *Validator) checkUpdateNodeConfig(wf *workflow.Workflow, m Mutation) (Scope, string) {
	if pathIsUnsafe(m.Path) {
		return "", "path contains a disallowed prototype-pollution segment"
	}
	node, ok := wf.NodeByID(m.TargetNodeID)
	if !ok {
		return "", "target node does not exist"
	}
	schema, ok := v.Schemas[node.Type]
	if !ok {
		return "", "no schema registered for node type " + string(node.Type)
	}
	field := strings.SplitN(m.Path, ".", 2)[0]
	if !schema.HasField(field) {
		return "", "path " + m.Path + " does not exist in node schema"
	}
	return inferScopeFromPath(m.Path), ""
}

func (v *Validator) checkUpdatePrompt(wf *workflow.Workflow, m Mutation) (Scope, string) {
	node, ok := wf.NodeByID(m.TargetNodeID)
	if !ok {
		return "", "target node does not exist"
	}
	schema, ok := v.Schemas[node.Type]
	if !ok || !schema.IsAgentType {
		return "", "target is not an agent-typed node"
	}
	field := m.Field
	if field == "" {
		field = "userQuery"
	}
	if !schema.HasField(field) {
		return "", "field " + field + " does not exist in node schema"
	}
	return ScopePrompts, ""
}

func (v *Validator) checkUpdateModel(wf *workflow.Workflow, m Mutation) (Scope, string) {
	node, ok := wf.NodeByID(m.TargetNodeID)
	if !ok {
		return "", "target node does not exist"
	}
	schema, ok := v.Schemas[node.Type]
	if !ok || !schema.HasModelProp {
		return "", "target node's schema does not declare a model property"
	}
	return ScopeModels, ""
}

func (v *Validator) checkAddNode(wf *workflow.Workflow, m Mutation) (Scope, string) {
	if m.Node == nil {
		return "", "add-node requires a node payload"
	}
	if !m.Node.Type.IsKnown() {
		return "", "unknown node type " + string(m.Node.Type)
	}
	if _, exists := wf.NodeByID(m.Node.ID); exists {
		return "", "node id already present: " + m.Node.ID
	}
	if m.Node.Name != "" {
		if _, exists := wf.NodeByName(m.Node.Name); exists {
			return "", "node name already present: " + m.Node.Name
		}
	}
	schema, ok := v.Schemas[m.Node.Type]
	if ok {
		for _, req := range schema.Required {
			if _, present := m.Node.Config[req]; !present {
				return "", "new node is missing required field " + req
			}
		}
	}
	if m.ConnectFrom != "" {
		if _, exists := wf.NodeByID(m.ConnectFrom); !exists {
			return "", "connectFrom target does not exist: " + m.ConnectFrom
		}
	}
	if m.ConnectTo != "" {
		if _, exists := wf.NodeByID(m.ConnectTo); !exists {
			return "", "connectTo target does not exist: " + m.ConnectTo
		}
	}
	return ScopeNodes, ""
}

func (v *Validator) checkRemoveNode(wf *workflow.Workflow, m Mutation, selfNodeID string) (Scope, string) {
	node, ok := wf.NodeByID(m.TargetNodeID)
	if !ok {
		return "", "target node does not exist"
	}
	if node.Type == workflow.NodeInput || node.Type == workflow.NodeOutput {
		return "", "cannot remove an input or output node"
	}
	if selfNodeID != "" {
		if node.ID == selfNodeID {
			return "", "Cannot modify the self-reflect node"
		}
		for _, e := range wf.EdgesTo(selfNodeID) {
			if e.Source == node.ID {
				return "", "cannot remove a direct predecessor of the self-reflect node"
			}
		}
	}
	return ScopeNodes, ""
}

func (v *Validator) checkAddEdge(wf *workflow.Workflow, m Mutation, selfNodeID string) (Scope, string) {
	if _, ok := wf.NodeByID(m.Source); !ok {
		return "", "edge source does not exist"
	}
	if _, ok := wf.NodeByID(m.Target); !ok {
		return "", "edge target does not exist"
	}
	for _, e := range wf.Edges {
		if e.Source == m.Source && e.Target == m.Target && e.SourceHandle == m.SourceHandle {
			return "", "duplicate edge"
		}
	}
	if selfNodeID != "" && (m.Source == selfNodeID || m.Target == selfNodeID) {
		return "", "Cannot modify the self-reflect node"
	}
	return ScopeEdges, ""
}

func (v *Validator) checkRemoveEdge(wf *workflow.Workflow, m Mutation, selfNodeID string) (Scope, string) {
	edge, ok := findEdge(wf, m.EdgeID)
	if !ok {
		return "", "edge does not exist"
	}
	if selfNodeID != "" && (edge.Source == selfNodeID || edge.Target == selfNodeID) {
		return "", "Cannot modify the self-reflect node"
	}
	return ScopeEdges, ""
}

func (v *Validator) checkUpdateWorkflowSetting(m Mutation) (Scope, string) {
	switch m.Field {
	case "name", "description", "workingDirectory":
	default:
		return "", "field must be one of name, description, workingDirectory"
	}
	if _, ok := m.Value.(string); !ok {
		return "", "value must be a string"
	}
	return ScopeParameters, ""
}

func findEdge(wf *workflow.Workflow, id string) (workflow.Edge, bool) {
	for _, e := range wf.Edges {
		if e.ID == id {
			return e, true
		}
	}
	return workflow.Edge{}, false
}

// applyMutation projects one already-checked mutation onto working, used
// during validation to let later mutations in the same batch see earlier
// ones (and so cycle detection runs against the fully projected graph).
func applyMutation(working *workflow.Workflow, m Mutation) {
	switch m.Op {
	case OpUpdateNodeConfig:
		setNodeConfigPath(working, m.TargetNodeID, m.Path, m.Value)
	case OpUpdatePrompt:
		field := m.Field
		if field == "" {
			field = "userQuery"
		}
		setNodeConfigPath(working, m.TargetNodeID, field, m.Value)
	case OpUpdateModel:
		setNodeConfigPath(working, m.TargetNodeID, "model", m.Value)
	case OpAddNode:
		node := *m.Node
		if node.Config == nil {
			node.Config = map[string]interface{}{}
		}
		working.Nodes = append(working.Nodes, node)
		if m.ConnectFrom != "" {
			working.Edges = append(working.Edges, workflow.Edge{ID: uuid.NewString(), Source: m.ConnectFrom, Target: node.ID})
		}
		if m.ConnectTo != "" {
			working.Edges = append(working.Edges, workflow.Edge{ID: uuid.NewString(), Source: node.ID, Target: m.ConnectTo})
		}
	case OpRemoveNode:
		removeNodeCascade(working, m.TargetNodeID)
	case OpAddEdge:
		working.Edges = append(working.Edges, workflow.Edge{
			ID: uuid.NewString(), Source: m.Source, Target: m.Target,
			SourceHandle: m.SourceHandle, TargetHandle: m.TargetHandle,
		})
	case OpRemoveEdge:
		removeEdgeByID(working, m.EdgeID)
	case OpUpdateWorkflowSetting:
		applyWorkflowSetting(working, m.Field, m.Value)
	}
}

func setNodeConfigPath(wf *workflow.Workflow, nodeID, path string, value interface{}) {
	for i := range wf.Nodes {
		if wf.Nodes[i].ID != nodeID {
			continue
		}
		if wf.Nodes[i].Config == nil {
			wf.Nodes[i].Config = map[string]interface{}{}
		}
		segments := strings.Split(path, ".")
		cur := wf.Nodes[i].Config
		for j, seg := range segments {
			if j == len(segments)-1 {
				cur[seg] = value
				return
			}
			next, ok := cur[seg].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				cur[seg] = next
			}
			cur = next
		}
	}
}

func removeNodeCascade(wf *workflow.Workflow, nodeID string) {
	nodes := wf.Nodes[:0]
	for _, n := range wf.Nodes {
		if n.ID != nodeID {
			nodes = append(nodes, n)
		}
	}
	wf.Nodes = nodes

	edges := wf.Edges[:0]
	for _, e := range wf.Edges {
		if e.Source != nodeID && e.Target != nodeID {
			edges = append(edges, e)
		}
	}
	wf.Edges = edges
}

func removeEdgeByID(wf *workflow.Workflow, edgeID string) {
	edges := wf.Edges[:0]
	for _, e := range wf.Edges {
		if e.ID != edgeID {
			edges = append(edges, e)
		}
	}
	wf.Edges = edges
}

func applyWorkflowSetting(wf *workflow.Workflow, field string, value interface{}) {
	s, _ := value.(string)
	switch field {
	case "name":
		wf.Name = s
	case "description":
		wf.Description = s
	case "workingDirectory":
		wf.WorkingDirectory = s
	}
}
