// Package exec holds per-execution mutable state: node outputs, variables,
// node lifecycle status, and the {{Node.path}} interpolation engine that
// reads against them.
package exec

import (
	"context"
	"sync"
	"time"

	"github.com/smogili1/agentflow/internal/workflow"
)

// NodeStatus is a node's lifecycle state within one execution.
type NodeStatus string

const (
	StatusPending NodeStatus = "pending"
	StatusRunning NodeStatus = "running"
	StatusComplete NodeStatus = "complete"
	StatusError    NodeStatus = "error"
	StatusSkipped  NodeStatus = "skipped"
	StatusWaiting  NodeStatus = "waiting"
)

// NodeState is the per-node lifecycle record tracked in an ExecutionContext.
type NodeState struct {
	Status      NodeStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Error       error
	Result      interface{}
	RunCount    int
}

// Context is the per-run mutable state shared by every node executor during
// one execution. It is owned exclusively by the engine running that
// execution; no state is shared with concurrent executions.
type Context struct {
	ExecutionID      string
	WorkflowID       string
	WorkingDirectory string

	mu                 sync.RWMutex
	workflow           *workflow.Workflow
	input              interface{}
	nodeOutputs        map[string]interface{}
	variables          map[string]interface{}
	nodeStates         map[string]*NodeState
	nodeNameToID       map[string]string
	nodeIDToName       map[string]string
	activePredecessors map[string][]string
	feedback           map[string]string

	cancelCtx context.Context
	cancel    context.CancelFunc
}

// New builds a fresh Context for one execution of wf with the given
// top-level input value.
func New(executionID string, wf *workflow.Workflow, workingDirectory string, input interface{}) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		ExecutionID:        executionID,
		WorkflowID:          wf.ID,
		WorkingDirectory:    workingDirectory,
		workflow:            wf,
		input:               input,
		nodeOutputs:         make(map[string]interface{}),
		variables:           make(map[string]interface{}),
		nodeStates:          make(map[string]*NodeState),
		nodeNameToID:        make(map[string]string),
		nodeIDToName:        make(map[string]string),
		activePredecessors:  make(map[string][]string),
		feedback:            make(map[string]string),
		cancelCtx:           ctx,
		cancel:              cancel,
	}
	for _, n := range wf.Nodes {
		c.nodeStates[n.ID] = &NodeState{Status: StatusPending}
		if n.Name != "" {
			c.nodeNameToID[n.Name] = n.ID
			c.nodeIDToName[n.ID] = n.Name
		}
	}
	return c
}

// Input returns the execution's top-level input value, verbatim.
func (c *Context) Input() interface{} { return c.input }

// SetActivePredecessors records, for nodeID, which of its predecessors are
// reachable along edges not masked by a prior branch decision. The engine
// recomputes this right before dispatching nodeID; merge and output
// executors read it instead of the workflow's static predecessor list so
// that skipped branches are excluded from their input set.
func (c *Context) SetActivePredecessors(nodeID string, ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activePredecessors[nodeID] = ids
}

// ActivePredecessors returns the predecessors recorded by
// SetActivePredecessors, or the workflow's full static predecessor list if
// none was recorded yet.
func (c *Context) ActivePredecessors(nodeID string) []string {
	c.mu.RLock()
	ids, ok := c.activePredecessors[nodeID]
	c.mu.RUnlock()
	if ok {
		return ids
	}
	return c.PredecessorsOf(nodeID)
}

// SetFeedback records rejection feedback text injected into a node re-run by
// the rejection-feedback loop.
func (c *Context) SetFeedback(nodeID, feedback string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.feedback[nodeID] = feedback
}

// Feedback returns the feedback text recorded for nodeID, if any.
func (c *Context) Feedback(nodeID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.feedback[nodeID]
	return f, ok
}

// ClearFeedback removes any feedback recorded for nodeID.
func (c *Context) ClearFeedback(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.feedback, nodeID)
}

// Done returns the cooperative cancellation channel; closed once Cancel is
// called.
func (c *Context) Done() <-chan struct{} { return c.cancelCtx.Done() }

// CancelContext returns the context.Context carrying the cancellation
// signal, suitable for passing to blocking I/O.
func (c *Context) CancelContext() context.Context { return c.cancelCtx }

// Cancel triggers cooperative cancellation for the whole execution. Safe to
// call more than once; subsequent calls are no-ops.
func (c *Context) Cancel() { c.cancel() }

// Cancelled reports whether Cancel has been called.
func (c *Context) Cancelled() bool {
	select {
	case <-c.cancelCtx.Done():
		return true
	default:
		return false
	}
}

// RecordOutput stores the successful output of a completed node. This is the
// single point where a node's result is folded back into shared state.
func (c *Context) RecordOutput(nodeID string, output interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodeOutputs[nodeID] = output
}

// Output returns the last successful output recorded for nodeID.
func (c *Context) Output(nodeID string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.nodeOutputs[nodeID]
	return v, ok
}

// AllOutputs returns a snapshot copy of every recorded node output.
func (c *Context) AllOutputs() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.nodeOutputs))
	for k, v := range c.nodeOutputs {
		out[k] = v
	}
	return out
}

// SetVariable sets a dotted-key variable visible to interpolation and
// condition evaluation.
func (c *Context) SetVariable(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.variables[key] = value
}

// Variable reads a dotted-key variable.
func (c *Context) Variable(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variables[key]
	return v, ok
}

// AllVariables returns a snapshot copy of every variable.
func (c *Context) AllVariables() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// State returns the lifecycle record for nodeID, creating one in pending
// status if absent (used for nodes added by an evolution mutation mid-run,
// though evolution never touches an in-flight execution).
func (c *Context) State(nodeID string) *NodeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.nodeStates[nodeID]
	if !ok {
		st = &NodeState{Status: StatusPending}
		c.nodeStates[nodeID] = st
	}
	return st
}

// SetStatus transitions nodeID's status, stamping timestamps as appropriate.
func (c *Context) SetStatus(nodeID string, status NodeStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.nodeStates[nodeID]
	if !ok {
		st = &NodeState{}
		c.nodeStates[nodeID] = st
	}
	st.Status = status
	switch status {
	case StatusRunning:
		st.StartedAt = time.Now()
	case StatusComplete, StatusError:
		st.CompletedAt = time.Now()
	}
}

// IncrementRunCount bumps nodeID's run counter and returns the new value.
// The run counter lives in the context (not the node) per the rejection
// loop's own design note: it is a per-execution fact, not part of the
// workflow definition.
func (c *Context) IncrementRunCount(nodeID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.nodeStates[nodeID]
	if !ok {
		st = &NodeState{}
		c.nodeStates[nodeID] = st
	}
	st.RunCount++
	return st.RunCount
}

// RunCount returns nodeID's current run counter (0 if it has never run).
func (c *Context) RunCount(nodeID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if st, ok := c.nodeStates[nodeID]; ok {
		return st.RunCount
	}
	return 0
}

// ResetForRerun resets nodeID back to pending status, clearing its prior
// result and error but preserving its run counter, for rejection-loop
// re-entry.
func (c *Context) ResetForRerun(nodeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.nodeStates[nodeID]
	if !ok {
		st = &NodeState{}
		c.nodeStates[nodeID] = st
	}
	st.Status = StatusPending
	st.Error = nil
	st.Result = nil
	st.StartedAt = time.Time{}
	st.CompletedAt = time.Time{}
}

// NodeIDForName resolves a node name to its id, or returns name unchanged
// (as if it were already an id) if no node carries that name.
func (c *Context) NodeIDForName(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.nodeNameToID[name]; ok {
		return id
	}
	return name
}

// NodeName returns the display name for nodeID, or nodeID itself if unnamed.
func (c *Context) NodeName(nodeID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name, ok := c.nodeIDToName[nodeID]; ok {
		return name
	}
	return nodeID
}

// PredecessorsOf returns the immediate predecessors of nodeID.
func (c *Context) PredecessorsOf(nodeID string) []string {
	var out []string
	for _, e := range c.workflow.EdgesTo(nodeID) {
		out = append(out, e.Source)
	}
	return out
}

// SuccessorsOf returns the immediate successors of nodeID.
func (c *Context) SuccessorsOf(nodeID string) []string {
	var out []string
	for _, e := range c.workflow.EdgesFrom(nodeID) {
		out = append(out, e.Target)
	}
	return out
}

// AncestorsOf returns every transitive predecessor of nodeID.
func (c *Context) AncestorsOf(nodeID string) map[string]bool {
	return workflow.Ancestors(c.workflow, nodeID)
}

// Workflow returns the workflow this context belongs to.
func (c *Context) Workflow() *workflow.Workflow { return c.workflow }
