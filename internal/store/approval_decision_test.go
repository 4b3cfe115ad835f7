package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smogili1/agentflow/internal/store"
)

// TestApprovalDecisionAcrossStores verifies SaveApprovalDecision/
// GetApprovalDecision behave identically on MemStore and SQLiteStore: no
// decision yet reports ErrNotFound, a saved decision round-trips, and a
// second save for the same (executionID, nodeID) overwrites the first
// rather than erroring — only the latest `approve`/`reject` for a node
// should ever matter.
func TestApprovalDecisionAcrossStores(t *testing.T) {
	mem := store.NewMemStore()

	sqlitePath := filepath.Join(t.TempDir(), "approvals.db")
	sqlite, err := store.NewSQLiteStore(sqlitePath)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	for name, s := range map[string]store.Store{"mem": mem, "sqlite": sqlite} {
		t.Run(name, func(t *testing.T) {
			testApprovalDecisionRoundTrip(t, s)
		})
	}
}

func testApprovalDecisionRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetApprovalDecision(ctx, "exec-1", "node-1")
	if err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound before any decision saved, got %v", err)
	}

	decided := time.Now().UTC().Truncate(time.Second)
	if err := s.SaveApprovalDecision(ctx, &store.ApprovalDecision{
		ExecutionID: "exec-1",
		NodeID:      "node-1",
		Approved:    true,
		Feedback:    "looks good",
		DecidedAt:   decided,
	}); err != nil {
		t.Fatalf("save decision: %v", err)
	}

	got, err := s.GetApprovalDecision(ctx, "exec-1", "node-1")
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if !got.Approved || got.Feedback != "looks good" {
		t.Fatalf("unexpected decision: %+v", got)
	}

	if err := s.SaveApprovalDecision(ctx, &store.ApprovalDecision{
		ExecutionID: "exec-1",
		NodeID:      "node-1",
		Approved:    false,
		Feedback:    "changed my mind",
		DecidedAt:   time.Now().UTC().Truncate(time.Second),
	}); err != nil {
		t.Fatalf("overwrite decision: %v", err)
	}

	got, err = s.GetApprovalDecision(ctx, "exec-1", "node-1")
	if err != nil {
		t.Fatalf("get decision after overwrite: %v", err)
	}
	if got.Approved || got.Feedback != "changed my mind" {
		t.Fatalf("expected overwritten decision, got %+v", got)
	}

	// A different node under the same execution is independent.
	if _, err := s.GetApprovalDecision(ctx, "exec-1", "node-2"); err != store.ErrNotFound {
		t.Fatalf("expected ErrNotFound for unrelated node, got %v", err)
	}
}
