// Package evolution implements the self-modification safeguards a
// self-reflect node drives: validating a proposed batch of graph mutations
// against schema, scope, cycle, and self-protection rules, then applying a
// validated batch transactionally with before/after snapshots and an
// append-only audit log. Grounded on the teacher's graph validation helpers
// (cycle detection, deep copy) generalized from static pre-run checks to
// runtime mutation checks.
package evolution

import (
	"time"

	"github.com/smogili1/agentflow/internal/workflow"
)

// Mode selects how a self-reflect node's proposed evolution is handled.
type Mode string

const (
	ModeSuggest  Mode = "suggest"
	ModeAutoApply Mode = "auto-apply"
	ModeDryRun   Mode = "dry-run"
)

// Scope is one category a mutation's effect is attributed to, used by
// scope-enforcement.
type Scope string

const (
	ScopePrompts    Scope = "prompts"
	ScopeModels     Scope = "models"
	ScopeTools      Scope = "tools"
	ScopeNodes      Scope = "nodes"
	ScopeEdges      Scope = "edges"
	ScopeParameters Scope = "parameters"
)

// Op is one recognized mutation operation.
type Op string

const (
	OpUpdateNodeConfig     Op = "update-node-config"
	OpUpdatePrompt         Op = "update-prompt"
	OpUpdateModel          Op = "update-model"
	OpAddNode              Op = "add-node"
	OpRemoveNode           Op = "remove-node"
	OpAddEdge              Op = "add-edge"
	OpRemoveEdge           Op = "remove-edge"
	OpUpdateWorkflowSetting Op = "update-workflow-setting"
)

// Mutation is a single proposed change to a workflow graph. Which fields
// are meaningful depends on Op; unused fields are left zero.
type Mutation struct {
	Op Op `json:"op"`

	TargetNodeID string      `json:"targetNodeId,omitempty"`
	Path         string      `json:"path,omitempty"`
	Value        interface{} `json:"value,omitempty"`

	Node        *workflow.Node `json:"node,omitempty"`
	ConnectFrom string         `json:"connectFrom,omitempty"`
	ConnectTo   string         `json:"connectTo,omitempty"`

	EdgeID       string `json:"edgeId,omitempty"`
	Source       string `json:"source,omitempty"`
	Target       string `json:"target,omitempty"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`

	Field string `json:"field,omitempty"`
}

// WorkflowEvolution is what a self-reflect agent run produces: reasoning
// for the change, the ordered batch of mutations to apply, and the agent's
// own assessment of impact and risk.
type WorkflowEvolution struct {
	Reasoning       string     `json:"reasoning"`
	Mutations       []Mutation `json:"mutations"`
	ExpectedImpact  string     `json:"expectedImpact"`
	RiskAssessment  string     `json:"riskAssessment"`
}

// Diff summarizes the structural difference between two workflow snapshots.
type Diff struct {
	AddedNodes   []string
	RemovedNodes []string
	ChangedNodes []string
	AddedEdges   []string
	RemovedEdges []string
}

// Record is one append-only audit log entry, one per applied (or rejected)
// evolution attempt.
type Record struct {
	Timestamp        time.Time          `json:"timestamp"`
	WorkflowID       string             `json:"workflowId"`
	ExecutionID      string             `json:"executionId"`
	SelfNodeID       string             `json:"selfNodeId"`
	Mode             Mode               `json:"mode"`
	Mutations        []Mutation         `json:"mutations"`
	BeforeSnapshot   *workflow.Workflow `json:"beforeSnapshot,omitempty"`
	AfterSnapshot    *workflow.Workflow `json:"afterSnapshot,omitempty"`
	Applied          bool               `json:"applied"`
	Reasoning        string             `json:"reasoning"`
	ExpectedImpact   string             `json:"expectedImpact"`
	RiskAssessment   string             `json:"riskAssessment"`
	ValidationErrors []string           `json:"validationErrors,omitempty"`
}
