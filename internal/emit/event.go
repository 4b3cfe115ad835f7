package emit

import (
	"time"

	"github.com/smogili1/agentflow/internal/approval"
)

// EventType is the tag of the execution event union.
type EventType string

const (
	ExecutionStart    EventType = "execution-start"
	NodeStart         EventType = "node-start"
	NodeOutput        EventType = "node-output"
	NodeComplete      EventType = "node-complete"
	NodeError         EventType = "node-error"
	NodeWaiting       EventType = "node-waiting"
	ExecutionComplete EventType = "execution-complete"
	ExecutionError    EventType = "execution-error"
	ValidationError   EventType = "validation-error"
)

// Event is every message the engine can emit during an execution, tagged by
// Type. Every event carries ExecutionID and a monotonic Timestamp; fields
// outside a given Type's relevance are left zero.
type Event struct {
	Type        EventType
	ExecutionID string
	Timestamp   time.Time

	WorkflowID string // execution-start

	NodeID   string // node-start, node-output, node-complete, node-error, node-waiting
	NodeName string // node-start, node-waiting
	RunCount int    // node-start: 1-based run counter, bumped by the rejection-feedback loop

	StreamEvent interface{} // node-output: the executor's own streaming tagged union
	Result      interface{} // node-complete
	Err         error       // node-error, execution-error

	Approval *approval.Request // node-waiting

	FinalResult interface{} // execution-complete

	ValidationErrors []error // validation-error
}
