package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smogili1/agentflow/internal/workflow"
)

// SQLiteStore is a single-file Store backed by modernc.org/sqlite, grounded
// on the teacher's SQLiteStore connection setup (single-writer pool, WAL
// mode, busy timeout) with the table schema narrowed to workflows,
// execution summaries and approval decisions.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) the database at path and
// migrates its schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS workflows (
	id TEXT PRIMARY KEY,
	definition TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS execution_summaries (
	execution_id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	summary TEXT NOT NULL,
	started_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_summaries_workflow ON execution_summaries(workflow_id, started_at);
CREATE TABLE IF NOT EXISTS approval_decisions (
	execution_id TEXT NOT NULL,
	node_id TEXT NOT NULL,
	approved INTEGER NOT NULL,
	feedback TEXT,
	decided_at DATETIME NOT NULL,
	PRIMARY KEY (execution_id, node_id)
);
`)
	return err
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	body, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, definition, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at`,
		wf.ID, body, time.Now())
	return err
}

func (s *SQLiteStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM workflows WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(body, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	return &wf, nil
}

func (s *SQLiteStore) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	body, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET definition = ?, updated_at = ? WHERE id = ?`,
		body, time.Now(), wf.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT definition FROM workflows ORDER BY updated_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*workflow.Workflow
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var wf workflow.Workflow
		if err := json.Unmarshal(body, &wf); err != nil {
			return nil, fmt.Errorf("unmarshal workflow: %w", err)
		}
		out = append(out, &wf)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveExecutionSummary(ctx context.Context, summary *ExecutionSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal execution summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_summaries (execution_id, workflow_id, summary, started_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(execution_id) DO UPDATE SET summary = excluded.summary`,
		summary.ExecutionID, summary.WorkflowID, body, summary.StartedAt)
	return err
}

func (s *SQLiteStore) GetExecutionSummary(ctx context.Context, executionID string) (*ExecutionSummary, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM execution_summaries WHERE execution_id = ?`, executionID).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var out ExecutionSummary
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("unmarshal execution summary: %w", err)
	}
	return &out, nil
}

func (s *SQLiteStore) ListExecutionSummaries(ctx context.Context, workflowID string) ([]*ExecutionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary FROM execution_summaries WHERE workflow_id = ? ORDER BY started_at`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ExecutionSummary
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var summary ExecutionSummary
		if err := json.Unmarshal(body, &summary); err != nil {
			return nil, fmt.Errorf("unmarshal execution summary: %w", err)
		}
		out = append(out, &summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveApprovalDecision(ctx context.Context, decision *ApprovalDecision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_decisions (execution_id, node_id, approved, feedback, decided_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(execution_id, node_id) DO UPDATE SET approved = excluded.approved, feedback = excluded.feedback, decided_at = excluded.decided_at`,
		decision.ExecutionID, decision.NodeID, decision.Approved, decision.Feedback, decision.DecidedAt)
	return err
}

func (s *SQLiteStore) GetApprovalDecision(ctx context.Context, executionID, nodeID string) (*ApprovalDecision, error) {
	var d ApprovalDecision
	err := s.db.QueryRowContext(ctx,
		`SELECT execution_id, node_id, approved, feedback, decided_at FROM approval_decisions WHERE execution_id = ? AND node_id = ?`,
		executionID, nodeID).Scan(&d.ExecutionID, &d.NodeID, &d.Approved, &d.Feedback, &d.DecidedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
