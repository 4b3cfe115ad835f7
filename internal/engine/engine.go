// Package engine drives a single execution of a workflow graph to a
// terminal state, owning the scheduling state the teacher's graph.Engine
// owns for its own generic state-reducer model (status, frontier,
// concurrency) but recomputed here around this engine's edge/branch-masking
// readiness model instead of the teacher's dynamic path-hash routing.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/smogili1/agentflow/internal/approval"
	"github.com/smogili1/agentflow/internal/emit"
	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/executor"
	"github.com/smogili1/agentflow/internal/ids"
	"github.com/smogili1/agentflow/internal/policy"
	"github.com/smogili1/agentflow/internal/workflow"
)

// DAGEngine drives executions of a single workflow definition. One
// DAGEngine may run many concurrent executions of the same workflow; each
// execution owns its own exec.Context, per the isolation guarantee that no
// state is shared between concurrent executions beyond the ApprovalRegistry
// and the Store.
type DAGEngine struct {
	wf        *workflow.Workflow
	registry  *executor.Registry
	bus       emit.Bus
	approvals *approval.Registry
	evolution executor.EvolutionHooks
	opts      Options

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	cancel context.CancelFunc
	ec     *exec.Context
}

// New wires a DAGEngine for wf. registry must have an Executor registered
// for every node type wf uses (checked at Execute time, not here, so a
// caller may build the registry incrementally). evolutionHooks may be nil
// if wf contains no self-reflect nodes.
func New(wf *workflow.Workflow, registry *executor.Registry, bus emit.Bus, approvals *approval.Registry, evolutionHooks executor.EvolutionHooks, opts ...Option) (*DAGEngine, error) {
	if wf == nil {
		return nil, &EngineError{Message: "workflow is nil"}
	}
	if registry == nil {
		return nil, &EngineError{Message: "executor registry is nil"}
	}
	if approvals == nil {
		return nil, &EngineError{Message: "approval registry is nil"}
	}
	return &DAGEngine{
		wf:        wf,
		registry:  registry,
		bus:       bus,
		approvals: approvals,
		evolution: evolutionHooks,
		opts:      resolveOptions(opts),
		runs:      make(map[string]*runState),
	}, nil
}

type nodeResult struct {
	nodeID   string
	runCount int
	result   executor.Result
	err      error
}

// Execute runs the workflow once against input, to a terminal state. It
// returns the final result (the single output node's value, or a
// node-name-to-value mapping when there is more than one) or an error:
// workflow.ValidationErrors if static validation rejected the workflow,
// *ExecutionError for an unrecovered node failure, or *Cancelled if
// interrupt() (or the RunWallClockBudget) ended the run early.
func (e *DAGEngine) Execute(ctx context.Context, input interface{}) (interface{}, error) {
	ec := exec.New(ids.NewExecutionID(), e.wf, e.wf.WorkingDirectory, input)
	return e.ExecuteFrom(ctx, ec)
}

// ExecuteFrom drives ec to a terminal state exactly like Execute, but
// accepts a caller-built exec.Context instead of constructing a fresh one —
// the seam internal/replay's Seed uses to pre-populate reused nodes' output
// and status before handing the context to the scheduler, so a replay run
// never re-executes a node the planner decided to reuse.
func (e *DAGEngine) ExecuteFrom(ctx context.Context, ec *exec.Context) (interface{}, error) {
	executionID := ec.ExecutionID

	if verrs := e.validate(); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		e.emit(emit.Event{Type: emit.ValidationError, ExecutionID: executionID, Timestamp: time.Now(), ValidationErrors: errs})
		return nil, verrs
	}

	runCtx, cancel := context.WithCancel(ctx)
	if e.opts.RunWallClockBudget > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, e.opts.RunWallClockBudget)
	}

	e.mu.Lock()
	e.runs[executionID] = &runState{cancel: cancel, ec: ec}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.runs, executionID)
		e.mu.Unlock()
		cancel()
	}()

	var cancelApprovalsOnce sync.Once
	go func() {
		<-runCtx.Done()
		cancelApprovalsOnce.Do(func() { e.approvals.CancelAll(executionID) })
	}()

	e.emit(emit.Event{Type: emit.ExecutionStart, ExecutionID: executionID, WorkflowID: e.wf.ID, Timestamp: time.Now()})

	result, runErr := e.run(runCtx, ec, executionID)

	if runErr != nil {
		e.emit(emit.Event{Type: emit.ExecutionError, ExecutionID: executionID, Err: runErr, Timestamp: time.Now()})
		return nil, runErr
	}
	e.emit(emit.Event{Type: emit.ExecutionComplete, ExecutionID: executionID, FinalResult: result, Timestamp: time.Now()})
	return result, nil
}

func (e *DAGEngine) validate() workflow.ValidationErrors {
	errs := workflow.Validate(e.wf)
	errs = append(errs, e.registry.ValidateAll(e.wf)...)
	return errs
}

// run drives the scheduling loop: skip-propagation, readiness, concurrent
// dispatch, and draining one completion at a time, until nothing is pending
// or in flight.
func (e *DAGEngine) run(runCtx context.Context, ec *exec.Context, executionID string) (interface{}, error) {
	activeEdges := make(map[string]bool, len(e.wf.Edges))
	for _, edge := range e.wf.Edges {
		activeEdges[edge.ID] = true
	}

	// A fresh Execute call never has any node already complete; replay's
	// Seed does, to skip nodes it decided to reuse. Re-derive and apply
	// the masking those nodes' original run would have performed, so a
	// reused condition/approval node's un-taken branch stays masked here
	// too instead of looking newly reachable.
	for _, n := range e.wf.Nodes {
		if ec.State(n.ID).Status != exec.StatusComplete {
			continue
		}
		if out, ok := ec.Output(n.ID); ok {
			e.maskEdges(activeEdges, n, seededResultHandle(n, out))
		}
	}

	completions := make(chan nodeResult, e.opts.QueueDepth)
	sem := make(chan struct{}, e.opts.MaxConcurrentNodes)
	var wg sync.WaitGroup
	inFlight := make(map[string]bool)

	var aborted error

	for {
		e.propagateSkips(ec, activeEdges)

		if runCtx.Err() == nil && aborted == nil {
			for _, n := range e.wf.Nodes {
				if inFlight[n.ID] || ec.State(n.ID).Status != exec.StatusPending {
					continue
				}
				if decision, rh := e.retryLimitDecision(ec, n); rh {
					if failErr := e.applyRetryLimitDecision(ec, n, decision); failErr != nil {
						e.emit(emit.Event{Type: emit.NodeError, ExecutionID: executionID, NodeID: n.ID, Err: failErr, Timestamp: time.Now()})
						if aborted == nil {
							aborted = &ExecutionError{ExecutionID: executionID, NodeID: n.ID, Err: failErr}
						}
					}
					continue
				}
				if !e.isReady(ec, activeEdges, n) {
					continue
				}
				if n.Type == workflow.NodeMerge && e.hasMergeConflict(ec, activeEdges, n) && e.opts.Metrics != nil {
					e.opts.Metrics.IncMergeConflicts()
				}
				ec.SetActivePredecessors(n.ID, e.activeIncoming(activeEdges, n.ID))
				runCount := ec.IncrementRunCount(n.ID)
				inFlight[n.ID] = true
				wg.Add(1)
				node := n
				go func() {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()
					if e.opts.Metrics != nil && len(completions) == cap(completions) {
						e.opts.Metrics.IncBackpressureEvents()
					}
					completions <- e.runNode(runCtx, ec, executionID, node, runCount)
				}()
				if runCount > 1 {
					if e.opts.Metrics != nil {
						e.opts.Metrics.IncRetries()
					}
					e.emit(emit.Event{
						Type: emit.NodeOutput, ExecutionID: executionID, NodeID: node.ID,
						StreamEvent: map[string]interface{}{"type": "run-start", "runCount": runCount},
						Timestamp:   time.Now(),
					})
				}
			}
		}

		if e.opts.Metrics != nil {
			e.opts.Metrics.SetInFlight(len(inFlight))
			e.opts.Metrics.SetQueueDepth(len(completions))
		}

		if len(inFlight) == 0 {
			break
		}

		res := <-completions
		delete(inFlight, res.nodeID)
		node, _ := e.wf.NodeByID(res.nodeID)

		if res.err != nil {
			e.emit(emit.Event{Type: emit.NodeError, ExecutionID: executionID, NodeID: res.nodeID, Err: res.err, Timestamp: time.Now()})
			ec.SetStatus(res.nodeID, exec.StatusError)
			if aborted == nil {
				if runCtx.Err() != nil {
					aborted = &Cancelled{ExecutionID: executionID}
				} else {
					aborted = &ExecutionError{ExecutionID: executionID, NodeID: res.nodeID, Err: res.err}
				}
			}
			continue
		}

		ec.SetStatus(res.nodeID, exec.StatusComplete)
		ec.RecordOutput(res.nodeID, res.result.Output)
		e.emit(emit.Event{Type: emit.NodeComplete, ExecutionID: executionID, NodeID: res.nodeID, Result: res.result.Output, Timestamp: time.Now()})

		if node.Type == workflow.NodeApproval && res.result.Handle == "rejected" {
			e.handleRejection(ec, node, res.result.Output)
		}
		e.maskEdges(activeEdges, node, res.result.Handle)
	}

	wg.Wait()

	if aborted == nil && runCtx.Err() != nil {
		aborted = &Cancelled{ExecutionID: executionID}
	}
	if aborted != nil {
		return nil, aborted
	}

	if stuck := e.firstStuckPending(ec); stuck != "" {
		return nil, &EngineError{Message: "no runnable nodes remain but node " + stuck + " is still pending"}
	}

	return e.gatherFinalResult(ec), nil
}

func (e *DAGEngine) firstStuckPending(ec *exec.Context) string {
	for _, n := range e.wf.Nodes {
		if ec.State(n.ID).Status == exec.StatusPending {
			return n.ID
		}
	}
	return ""
}

// propagateSkips repeatedly marks pending nodes skipped until no further
// node qualifies: a non-input node with zero remaining active incoming
// edges (every incoming edge was masked by a branch decision), or whose
// every active incoming source has itself reached StatusSkipped.
func (e *DAGEngine) propagateSkips(ec *exec.Context, activeEdges map[string]bool) {
	for {
		changed := false
		for _, n := range e.wf.Nodes {
			if ec.State(n.ID).Status != exec.StatusPending {
				continue
			}
			if n.Type == workflow.NodeInput {
				continue
			}
			incoming := e.activeIncoming(activeEdges, n.ID)
			if len(incoming) == 0 {
				ec.SetStatus(n.ID, exec.StatusSkipped)
				changed = true
				continue
			}
			allSkipped := true
			for _, src := range incoming {
				if ec.State(src).Status != exec.StatusSkipped {
					allSkipped = false
					break
				}
			}
			if allSkipped {
				ec.SetStatus(n.ID, exec.StatusSkipped)
				changed = true
			}
		}
		if !changed {
			return
		}
	}
}

func (e *DAGEngine) activeIncoming(activeEdges map[string]bool, nodeID string) []string {
	var sources []string
	for _, edge := range e.wf.EdgesTo(nodeID) {
		if activeEdges[edge.ID] {
			sources = append(sources, edge.Source)
		}
	}
	return sources
}

// isReady reports whether n's active predecessors satisfy its join rule:
// an ordinary AND-join (every active source complete-or-skipped, at least
// one complete) for every node type except merge, whose strategy decides.
func (e *DAGEngine) isReady(ec *exec.Context, activeEdges map[string]bool, n workflow.Node) bool {
	incoming := e.activeIncoming(activeEdges, n.ID)
	if len(incoming) == 0 {
		return n.Type == workflow.NodeInput
	}

	if n.Type == workflow.NodeMerge {
		strategy, _ := n.Config["strategy"].(string)
		if executor.MergeStrategy(strategy) == executor.MergeFirstComplete {
			for _, src := range incoming {
				if ec.State(src).Status == exec.StatusComplete {
					return true
				}
			}
			return false
		}
	}

	anyComplete := false
	for _, src := range incoming {
		switch ec.State(src).Status {
		case exec.StatusComplete:
			anyComplete = true
		case exec.StatusSkipped:
		default:
			return false
		}
	}
	return anyComplete
}

// hasMergeConflict reports whether a first-complete merge node is becoming
// ready with more than one branch already complete — the two branches raced
// and only one of their outputs will be used.
func (e *DAGEngine) hasMergeConflict(ec *exec.Context, activeEdges map[string]bool, n workflow.Node) bool {
	strategy, _ := n.Config["strategy"].(string)
	if executor.MergeStrategy(strategy) != executor.MergeFirstComplete {
		return false
	}
	complete := 0
	for _, src := range e.activeIncoming(activeEdges, n.ID) {
		if ec.State(src).Status == exec.StatusComplete {
			complete++
		}
	}
	return complete > 1
}

// maskEdges removes every outgoing edge of node whose source handle is set
// and differs from the nominated handle from activeEdges, so later
// readiness/skip computation no longer counts that path.
func (e *DAGEngine) maskEdges(activeEdges map[string]bool, node workflow.Node, handle string) {
	for _, edge := range e.wf.EdgesFrom(node.ID) {
		if edge.SourceHandle != "" && edge.SourceHandle != handle {
			delete(activeEdges, edge.ID)
		}
	}
}

// handleRejection implements the rejection-feedback loop: for every
// outgoing edge of a rejected approval node that targets one of its own
// ancestors, reset that ancestor and the nodes between it and the approval
// node (exclusive) back to pending and inject the rejection feedback, so
// the next scheduling tick re-dispatches the ancestor.
func (e *DAGEngine) handleRejection(ec *exec.Context, approvalNode workflow.Node, output interface{}) {
	ancestors := workflow.Ancestors(e.wf, approvalNode.ID)
	feedback, _ := asMap(output)["feedback"].(string)

	for _, edge := range e.wf.EdgesFrom(approvalNode.ID) {
		if edge.SourceHandle != "" && edge.SourceHandle != "rejected" {
			continue
		}
		if !ancestors[edge.Target] {
			continue
		}
		onPath := workflow.Descendants(e.wf, edge.Target)
		ec.ResetForRerun(edge.Target)
		ec.SetFeedback(edge.Target, feedback)
		for nodeID := range onPath {
			if nodeID == approvalNode.ID || !ancestors[nodeID] {
				continue
			}
			ec.ResetForRerun(nodeID)
		}
	}
}

// seededResultHandle reconstructs the Handle a node's original Execute call
// would have returned, from the output value a pre-seeded exec.Context (as
// built by internal/replay's Seed) recorded for it. Only condition and
// approval nodes ever nominate a handle; every other node type's stored
// output carries nothing to recover, and mirrors Execute's own default of
// leaving Handle empty, which matches everything in maskEdges.
func seededResultHandle(node workflow.Node, output interface{}) string {
	out := asMap(output)
	switch node.Type {
	case workflow.NodeCondition:
		if result, ok := out["condition"].(bool); ok {
			if result {
				return "true"
			}
			return "false"
		}
	case workflow.NodeApproval:
		if approved, ok := out["approved"].(bool); ok {
			if approved {
				return "approved"
			}
			return "rejected"
		}
	}
	return ""
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// retryLimitDecision reports whether n carries a rejectionHandler whose
// maxRetries the rejection-feedback loop's next run of n would exceed, and
// if so, the configured onMaxRetries behavior to apply instead of
// dispatching n's executor again.
func (e *DAGEngine) retryLimitDecision(ec *exec.Context, n workflow.Node) (policy.OnMaxRetries, bool) {
	rh := parseRejectionHandler(n)
	if rh == nil {
		return "", false
	}
	nextRun := ec.RunCount(n.ID) + 1
	if !rh.Exceeded(nextRun) {
		return "", false
	}
	return rh.OnMaxRetries, true
}

// applyRetryLimitDecision carries out decision for a node whose rejection
// retry limit was exceeded, returning a non-nil error only for the "fail"
// behavior, which the caller folds into the run's abort path.
func (e *DAGEngine) applyRetryLimitDecision(ec *exec.Context, n workflow.Node, decision policy.OnMaxRetries) error {
	switch decision {
	case policy.OnMaxRetriesSkip:
		ec.SetStatus(n.ID, exec.StatusSkipped)
		return nil
	case policy.OnMaxRetriesApproveAnyway:
		ec.SetStatus(n.ID, exec.StatusComplete)
		return nil
	default:
		ec.SetStatus(n.ID, exec.StatusError)
		return &RejectionLimitError{NodeID: n.ID}
	}
}

func parseRejectionHandler(n workflow.Node) *policy.RejectionHandler {
	raw, ok := n.Config["rejectionHandler"].(map[string]interface{})
	if !ok {
		return nil
	}
	maxRetries, _ := raw["maxRetries"].(float64)
	onMax, _ := raw["onMaxRetries"].(string)
	if onMax == "" {
		onMax = string(policy.OnMaxRetriesFail)
	}
	continueSession, _ := raw["continueSession"].(bool)
	template, _ := raw["feedbackTemplate"].(string)
	return &policy.RejectionHandler{
		MaxRetries:       int(maxRetries),
		OnMaxRetries:     policy.OnMaxRetries(onMax),
		ContinueSession:  continueSession,
		FeedbackTemplate: template,
	}
}

// gatherFinalResult collects the outputs of every complete output-typed
// node: a bare value if there is exactly one, else a name-to-value map.
func (e *DAGEngine) gatherFinalResult(ec *exec.Context) interface{} {
	var complete []workflow.Node
	for _, n := range e.wf.OutputNodes() {
		if ec.State(n.ID).Status == exec.StatusComplete {
			complete = append(complete, n)
		}
	}
	if len(complete) == 0 {
		return nil
	}
	if len(complete) == 1 {
		out, _ := ec.Output(complete[0].ID)
		return out
	}
	mapped := make(map[string]interface{}, len(complete))
	for _, n := range complete {
		out, _ := ec.Output(n.ID)
		mapped[ec.NodeName(n.ID)] = out
	}
	return mapped
}

// runNode dispatches node's executor and reports its outcome on the engine
// scheduling loop's completion channel (via its return value, sent by the
// caller so the goroutine need not close over the channel directly).
func (e *DAGEngine) runNode(ctx context.Context, ec *exec.Context, executionID string, node workflow.Node, runCount int) nodeResult {
	started := time.Now()
	ec.SetStatus(node.ID, exec.StatusRunning)
	e.emit(emit.Event{Type: emit.NodeStart, ExecutionID: executionID, NodeID: node.ID, NodeName: node.Name, RunCount: runCount, Timestamp: started})

	ex, ok := e.registry.Get(node.Type)
	if !ok {
		return nodeResult{nodeID: node.ID, runCount: runCount, err: &EngineError{Message: "no executor registered for node type " + string(node.Type)}}
	}

	svc := executor.Services{
		ExecutionID: executionID,
		Emit: func(streamEvent interface{}) {
			e.emit(emit.Event{Type: emit.NodeOutput, ExecutionID: executionID, NodeID: node.ID, StreamEvent: streamEvent, Timestamp: time.Now()})
		},
		OnWaiting: func(req *approval.Request) {
			ec.SetStatus(node.ID, exec.StatusWaiting)
			e.emit(emit.Event{Type: emit.NodeWaiting, ExecutionID: executionID, NodeID: node.ID, NodeName: node.Name, Approval: req, Timestamp: time.Now()})
		},
		Approvals:              e.approvals,
		Evolution:              e.evolution,
		CostTracker:            e.opts.CostTracker,
		ApprovalDefaultTimeout: e.opts.ApprovalDefaultTimeout,
		DefaultNodeTimeout:     e.opts.DefaultNodeTimeout,
		Decisions:              e.opts.Decisions,
	}

	result, err := ex.Execute(ctx, node, ec, svc)
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObserveStepLatency(time.Since(started))
	}
	return nodeResult{nodeID: node.ID, runCount: runCount, result: result, err: err}
}

func (e *DAGEngine) emit(ev emit.Event) {
	if e.bus != nil {
		e.bus.Emit(ev)
	}
}

// Interrupt cancels executionID's run: its cancellation token fires, every
// pending approval for it is rejected with "Execution interrupted", and
// in-flight executors are expected to observe the token and return.
// Idempotent; interrupting an unknown or already-finished executionID is a
// no-op.
func (e *DAGEngine) Interrupt(executionID string) {
	e.mu.Lock()
	run, ok := e.runs[executionID]
	e.mu.Unlock()
	if !ok {
		return
	}
	run.cancel()
}

// GetNodeState returns a snapshot of nodeID's lifecycle state within the
// still-running execution executionID, or false if the execution or node is
// unknown.
func (e *DAGEngine) GetNodeState(executionID, nodeID string) (exec.NodeState, bool) {
	e.mu.Lock()
	run, ok := e.runs[executionID]
	e.mu.Unlock()
	if !ok {
		return exec.NodeState{}, false
	}
	st := run.ec.State(nodeID)
	return *st, true
}

// Subscribe returns a live event channel for executionID and an unsubscribe
// function, delegating to the configured Bus.
func (e *DAGEngine) Subscribe(executionID string) (<-chan emit.Event, func()) {
	if e.bus == nil {
		ch := make(chan emit.Event)
		close(ch)
		return ch, func() {}
	}
	return e.bus.Subscribe(executionID)
}
