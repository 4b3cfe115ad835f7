// Package executor holds the NodeRegistry and one Executor implementation
// per node type tag (input, output, claude-agent, codex-agent, condition,
// merge, javascript, approval, self-reflect). Every executor satisfies the
// same narrow contract; the engine never type-switches on node type itself,
// it only ever calls through Executor.
package executor

import (
	"context"
	"time"

	"github.com/smogili1/agentflow/internal/approval"
	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/workflow"
)

// Result is what Execute returns on success: the node's output value and,
// optionally, a nominated output handle name the engine uses for branch
// masking (e.g. "true"/"false" for condition, "approved"/"rejected" for
// approval). An empty Handle means every outgoing edge is treated as a
// match.
type Result struct {
	Output interface{}
	Handle string
}

// Services bundles the cross-cutting collaborators an executor may need
// beyond the node and the execution context: a place to stream progress
// events, a way to report that the node has suspended on a human approval,
// and (for self-reflect) the evolution validate/apply hooks. Kept as a
// struct rather than individual parameters so adding a new cross-cutting
// concern does not change every executor's signature.
type Services struct {
	ExecutionID string

	// Emit publishes one streaming sub-event for the current node
	// (text-delta, tool-use, tool-result, thinking, todo-list, complete,
	// error, run-start). The engine wraps it in a node-output event.
	Emit func(streamEvent interface{})

	// OnWaiting is called by the approval executor the instant it
	// registers with Approvals and suspends, so the engine can emit
	// node-waiting and transition the node to StatusWaiting.
	OnWaiting func(req *approval.Request)

	// Approvals is the process-wide rendezvous table approval nodes
	// suspend on.
	Approvals *approval.Registry

	// Evolution is consulted only by the self-reflect executor.
	Evolution EvolutionHooks

	// CostTracker records per-call token usage for agent nodes, when the
	// engine was configured with one. Nil disables cost tracking.
	CostTracker CostTracker

	// ApprovalDefaultTimeout is the approval node's timeout when its own
	// config omits timeoutMinutes. Zero means unlimited.
	ApprovalDefaultTimeout time.Duration

	// Decisions, when set, lets the approval executor resolve a pending
	// approval from a decision recorded by a separate `agentflowd
	// approve`/`reject` invocation against the same store, instead of only
	// from an in-process Approvals.Submit call. Nil disables polling.
	Decisions ApprovalDecisionSource

	// DefaultNodeTimeout is the engine-wide fallback an agent node's own
	// config.timeout applies over when set.
	DefaultNodeTimeout time.Duration
}

// CostTracker is the narrow surface an agent executor needs to attribute
// LLM spend, satisfied by cost.Tracker without this package importing it.
type CostTracker interface {
	RecordLLMCall(model string, inputTokens, outputTokens int, nodeID string) error
}

// ApprovalDecisionSource is the narrow surface the approval executor polls
// for an out-of-process human decision. store.Store does not satisfy it
// directly (its GetApprovalDecision returns a *store.ApprovalDecision);
// cmd/agentflowd's decisionSource adapts a store.Store to it.
type ApprovalDecisionSource interface {
	GetApprovalDecision(ctx context.Context, executionID, nodeID string) (approved bool, feedback string, found bool, err error)
}

// EvolutionHooks is the narrow surface the self-reflect executor needs from
// the evolution package, expressed as an interface so the executor reaches
// validation and application through it rather than holding an
// evolution.Validator or evolution.Applier itself.
type EvolutionHooks interface {
	// Validate checks proposal against wf. scope (nil means unrestricted)
	// and maxMutations (0 means the hook's own default) come from the
	// self-reflect node's own config, since a scope/budget appropriate for
	// one self-reflect node need not suit another in the same process.
	Validate(wf *workflow.Workflow, proposal interface{}, selfNodeID string, scope []string, maxMutations int) (valid bool, errs []string, sanitized interface{})
	Apply(wf *workflow.Workflow, sanitized interface{}, executionID, nodeID string) (applied bool, before, after *workflow.Workflow, err error)
}

// Executor is the pure-contract interface every node type implements.
type Executor interface {
	// Validate checks a node's configuration before any execution starts.
	// Returns a *NodeConfigError (or nil) wrapping the specific problem.
	Validate(node workflow.Node) error

	// Execute runs the node to completion (or suspension, for approval).
	// ctx carries the execution-wide cancellation signal; implementations
	// must observe ctx.Done() at every blocking boundary.
	Execute(ctx context.Context, node workflow.Node, ec *exec.Context, svc Services) (Result, error)
}

// Registry maps node type tags to their Executor implementation.
type Registry struct {
	executors map[workflow.NodeType]Executor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[workflow.NodeType]Executor)}
}

// Register installs the executor for t, replacing any previous registration.
func (r *Registry) Register(t workflow.NodeType, e Executor) {
	r.executors[t] = e
}

// Get returns the executor registered for t, or false if none is registered.
func (r *Registry) Get(t workflow.NodeType) (Executor, bool) {
	e, ok := r.executors[t]
	return e, ok
}

// ValidateAll runs every node's executor Validate and collects the failures
// as workflow.ValidationErrors with code NODE_CONFIG_ERROR, never
// short-circuiting on the first failure.
func (r *Registry) ValidateAll(wf *workflow.Workflow) workflow.ValidationErrors {
	var errs workflow.ValidationErrors
	for _, n := range wf.Nodes {
		e, ok := r.Get(n.Type)
		if !ok {
			errs = append(errs, &workflow.ValidationError{
				Code: "NO_EXECUTOR", Message: "no executor registered for node type " + string(n.Type), NodeID: n.ID,
			})
			continue
		}
		if err := e.Validate(n); err != nil {
			errs = append(errs, &workflow.ValidationError{
				Code: "NODE_CONFIG_ERROR", Message: err.Error(), NodeID: n.ID,
			})
		}
	}
	return errs
}
