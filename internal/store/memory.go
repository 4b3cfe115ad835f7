package store

import (
	"context"
	"sync"

	"github.com/smogili1/agentflow/internal/workflow"
)

// MemStore is an in-memory Store, designed for tests and single-process
// development; state is lost on process exit.
type MemStore struct {
	mu         sync.RWMutex
	workflows  map[string]*workflow.Workflow
	summaries  map[string]*ExecutionSummary
	byWorkflow map[string][]string // workflowID -> executionIDs, insertion order
	decisions  map[string]*ApprovalDecision
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows:  make(map[string]*workflow.Workflow),
		summaries:  make(map[string]*ExecutionSummary),
		byWorkflow: make(map[string][]string),
		decisions:  make(map[string]*ApprovalDecision),
	}
}

func decisionKey(executionID, nodeID string) string { return executionID + ":" + nodeID }

func (m *MemStore) SaveWorkflow(_ context.Context, wf *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = wf.DeepCopy()
	return nil
}

func (m *MemStore) GetWorkflow(_ context.Context, id string) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return wf.DeepCopy(), nil
}

func (m *MemStore) UpdateWorkflow(_ context.Context, wf *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	m.workflows[wf.ID] = wf.DeepCopy()
	return nil
}

func (m *MemStore) ListWorkflows(_ context.Context) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*workflow.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		out = append(out, wf.DeepCopy())
	}
	return out, nil
}

func (m *MemStore) SaveExecutionSummary(_ context.Context, summary *ExecutionSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *summary
	if _, exists := m.summaries[summary.ExecutionID]; !exists {
		m.byWorkflow[summary.WorkflowID] = append(m.byWorkflow[summary.WorkflowID], summary.ExecutionID)
	}
	m.summaries[summary.ExecutionID] = &cp
	return nil
}

func (m *MemStore) GetExecutionSummary(_ context.Context, executionID string) (*ExecutionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) ListExecutionSummaries(_ context.Context, workflowID string) ([]*ExecutionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byWorkflow[workflowID]
	out := make([]*ExecutionSummary, 0, len(ids))
	for _, id := range ids {
		if s, ok := m.summaries[id]; ok {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemStore) SaveApprovalDecision(_ context.Context, decision *ApprovalDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *decision
	m.decisions[decisionKey(decision.ExecutionID, decision.NodeID)] = &cp
	return nil
}

func (m *MemStore) GetApprovalDecision(_ context.Context, executionID, nodeID string) (*ApprovalDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.decisions[decisionKey(executionID, nodeID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}
