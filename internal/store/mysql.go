package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/smogili1/agentflow/internal/workflow"
)

// MySQLStore is a Store backed by MySQL/MariaDB, for deployments that want
// a shared store across multiple engine processes. Grounded on the
// teacher's MySQLStore connection-pool sizing and ping-on-open check, with
// the schema narrowed to workflows, execution summaries and approval
// decisions.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens a MySQL connection using dsn (e.g.
// "user:pass@tcp(localhost:3306)/agentflow?parseTime=true") and migrates
// its schema.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(191) PRIMARY KEY,
			definition JSON NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS execution_summaries (
			execution_id VARCHAR(191) PRIMARY KEY,
			workflow_id VARCHAR(191) NOT NULL,
			summary JSON NOT NULL,
			started_at DATETIME NOT NULL,
			INDEX idx_execution_summaries_workflow (workflow_id, started_at)
		)`,
		`CREATE TABLE IF NOT EXISTS approval_decisions (
			execution_id VARCHAR(191) NOT NULL,
			node_id VARCHAR(191) NOT NULL,
			approved BOOLEAN NOT NULL,
			feedback TEXT,
			decided_at DATETIME NOT NULL,
			PRIMARY KEY (execution_id, node_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *MySQLStore) Close() error { return s.db.Close() }

func (s *MySQLStore) SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	body, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, definition, updated_at) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE definition = VALUES(definition), updated_at = VALUES(updated_at)`,
		wf.ID, body, time.Now())
	return err
}

func (s *MySQLStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
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

func (s *MySQLStore) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
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

func (s *MySQLStore) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
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

func (s *MySQLStore) SaveExecutionSummary(ctx context.Context, summary *ExecutionSummary) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal execution summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_summaries (execution_id, workflow_id, summary, started_at) VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE summary = VALUES(summary)`,
		summary.ExecutionID, summary.WorkflowID, body, summary.StartedAt)
	return err
}

func (s *MySQLStore) GetExecutionSummary(ctx context.Context, executionID string) (*ExecutionSummary, error) {
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

func (s *MySQLStore) ListExecutionSummaries(ctx context.Context, workflowID string) ([]*ExecutionSummary, error) {
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

func (s *MySQLStore) SaveApprovalDecision(ctx context.Context, decision *ApprovalDecision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approval_decisions (execution_id, node_id, approved, feedback, decided_at) VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE approved = VALUES(approved), feedback = VALUES(feedback), decided_at = VALUES(decided_at)`,
		decision.ExecutionID, decision.NodeID, decision.Approved, decision.Feedback, decision.DecidedAt)
	return err
}

func (s *MySQLStore) GetApprovalDecision(ctx context.Context, executionID, nodeID string) (*ApprovalDecision, error) {
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
