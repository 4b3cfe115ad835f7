package evolution

import (
	"context"

	"github.com/smogili1/agentflow/internal/store"
	"github.com/smogili1/agentflow/internal/workflow"
)

// Hooks adapts Validator/Applier to the narrow, interface{}-typed contract
// the self-reflect executor depends on (executor.EvolutionHooks), so that
// executor reaches validation and application only through the interface.
type Hooks struct {
	Validator *Validator
	Applier   *Applier
	Options   Options
}

// NewHooks wires a Validator and Applier using the default schema registry
// and the given history root, for the given self-reflect scope,
// mutation-budget and self-node options.
func NewHooks(st store.Store, historyRoot string, opts Options) *Hooks {
	return &Hooks{
		Validator: NewValidator(),
		Applier:   NewApplier(st, historyRoot),
		Options:   opts,
	}
}

// Validate implements executor.EvolutionHooks.
func (h *Hooks) Validate(wf *workflow.Workflow, proposal interface{}, selfNodeID string, scope []string, maxMutations int) (bool, []string, interface{}) {
	evo, ok := proposal.(WorkflowEvolution)
	if !ok {
		return false, []string{"proposal is not a WorkflowEvolution"}, WorkflowEvolution{}
	}
	opts := h.Options
	opts.SelfNodeID = selfNodeID
	if len(scope) > 0 {
		opts.Scope = make([]Scope, len(scope))
		for i, s := range scope {
			opts.Scope[i] = Scope(s)
		}
	}
	if maxMutations > 0 {
		opts.MaxMutations = maxMutations
	}
	valid, errs, sanitized := h.Validator.Validate(wf, evo, opts)
	return valid, errs, sanitized
}

// Apply implements executor.EvolutionHooks.
func (h *Hooks) Apply(wf *workflow.Workflow, sanitized interface{}, executionID, nodeID string) (bool, *workflow.Workflow, *workflow.Workflow, error) {
	evo, ok := sanitized.(WorkflowEvolution)
	if !ok {
		before := wf.DeepCopy()
		return false, before, before, nil
	}
	before, after, err := h.Applier.Apply(context.Background(), wf, evo, ApplyParams{
		ExecutionID: executionID, NodeID: nodeID, Mode: ModeAutoApply,
	})
	if err != nil {
		return false, before, nil, err
	}
	return true, before, after, nil
}
