// Package store persists workflow definitions, execution summaries and
// approval decisions. Adapted from the teacher's graph/store package: same
// ErrNotFound sentinel and the memory/sqlite/mysql three-backend split,
// narrowed from a generic step/checkpoint state store to this engine's
// concrete record types (a Workflow definition, an ExecutionSummary and an
// ApprovalDecision), and
// dropping the teacher's transactional-outbox PendingEvents/
// MarkEventsEmitted pair — exactly-once delivery across restarts is an
// explicit non-goal here, so the EventBus itself has no outbox to drain.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/smogili1/agentflow/internal/workflow"
)

// ErrNotFound is returned when a requested workflow or execution id does
// not exist.
var ErrNotFound = errors.New("not found")

// ExecutionSummary is the persisted record of one DAGEngine.Execute run,
// used by replay to reconstruct a seed context and by the evolution
// applier's audit trail to reference the execution that triggered it.
type ExecutionSummary struct {
	ExecutionID string                 `json:"executionId"`
	WorkflowID  string                 `json:"workflowId"`
	Status      string                 `json:"status"` // running | complete | error | cancelled
	Input       interface{}            `json:"input"`
	Output      interface{}            `json:"output,omitempty"`
	NodeOutputs map[string]interface{} `json:"nodeOutputs"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt time.Time              `json:"completedAt,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ApprovalDecision is a human decision on a pending approval node, recorded
// independently of the in-memory approval.Registry so that a decision made
// by a separate `agentflowd approve`/`reject` invocation can reach the
// process actually running the execution: that process's approval executor
// polls for a decision row keyed by (ExecutionID, NodeID) and resolves its
// own in-memory registry entry once one appears, rather than the CLI
// invocation reaching across processes directly.
type ApprovalDecision struct {
	ExecutionID string    `json:"executionId"`
	NodeID      string    `json:"nodeId"`
	Approved    bool      `json:"approved"`
	Feedback    string    `json:"feedback,omitempty"`
	DecidedAt   time.Time `json:"decidedAt"`
}

// Store is the persistence boundary the engine, replay planner, and
// evolution applier depend on. Implementations must be safe for concurrent
// use.
type Store interface {
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)

	// UpdateWorkflow replaces the stored definition for wf.ID, failing with
	// ErrNotFound if no workflow with that id was previously saved.
	UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error

	ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error)

	SaveExecutionSummary(ctx context.Context, summary *ExecutionSummary) error
	GetExecutionSummary(ctx context.Context, executionID string) (*ExecutionSummary, error)
	ListExecutionSummaries(ctx context.Context, workflowID string) ([]*ExecutionSummary, error)

	// SaveApprovalDecision records a human decision for (executionID,
	// nodeID). Overwrites any earlier decision for the same pair, since
	// only the most recent call to `approve`/`reject` for a still-pending
	// node should win.
	SaveApprovalDecision(ctx context.Context, decision *ApprovalDecision) error

	// GetApprovalDecision returns ErrNotFound if no decision has been
	// recorded yet for (executionID, nodeID).
	GetApprovalDecision(ctx context.Context, executionID, nodeID string) (*ApprovalDecision, error)
}
