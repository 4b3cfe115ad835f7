package main

import (
	"context"
	"fmt"
	"os"

	"github.com/smogili1/agentflow/internal/agent"
	"github.com/smogili1/agentflow/internal/agent/claude"
	"github.com/smogili1/agentflow/internal/agent/codex"
	"github.com/smogili1/agentflow/internal/agent/gemini"
	"github.com/smogili1/agentflow/internal/cost"
	"github.com/smogili1/agentflow/internal/evolution"
	"github.com/smogili1/agentflow/internal/executor"
	"github.com/smogili1/agentflow/internal/metrics"
	"github.com/smogili1/agentflow/internal/store"
	"github.com/smogili1/agentflow/internal/workflow"
)

// openStore resolves the --store flag to a backend: "memory" for an
// in-process MemStore, a mysql DSN (recognized by containing "@tcp("), or
// anything else treated as a sqlite file path. This mirrors the teacher's
// own examples, which pick a store backend from a single connection string
// rather than a separate --backend flag.
func openStore(dsn string) (store.Store, func() error, error) {
	switch {
	case dsn == "" || dsn == "memory":
		return store.NewMemStore(), func() error { return nil }, nil
	case looksLikeMySQLDSN(dsn):
		s, err := store.NewMySQLStore(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql store: %w", err)
		}
		return s, s.Close, nil
	default:
		s, err := store.NewSQLiteStore(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, s.Close, nil
	}
}

func looksLikeMySQLDSN(dsn string) bool {
	for i := 0; i+5 <= len(dsn); i++ {
		if dsn[i:i+5] == "@tcp(" {
			return true
		}
	}
	return false
}

// buildRegistry registers every known node type's executor, wiring the
// agent executor to whichever backends have credentials available in the
// environment. A node whose agentType has no registered runner fails
// validation with a clear message rather than at dispatch time.
func buildRegistry() *executor.Registry {
	runners := agent.NewRegistry()
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		runners.Register("claude", claude.New(key, os.Getenv("AGENTFLOW_CLAUDE_MODEL")))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		runners.Register("codex", codex.New(key, os.Getenv("AGENTFLOW_CODEX_MODEL")))
	}
	if key := firstNonEmpty(os.Getenv("GEMINI_API_KEY"), os.Getenv("GOOGLE_API_KEY")); key != "" {
		runners.Register("gemini", gemini.New(key, os.Getenv("AGENTFLOW_GEMINI_MODEL")))
	}

	reg := executor.NewRegistry()
	reg.Register(workflow.NodeInput, executor.Input{})
	reg.Register(workflow.NodeOutput, executor.Output{})
	reg.Register(workflow.NodeClaudeAgent, &executor.Agent{Runners: runners})
	reg.Register(workflow.NodeCodexAgent, &executor.Agent{Runners: runners})
	reg.Register(workflow.NodeCondition, executor.NewCondition())
	reg.Register(workflow.NodeMerge, executor.Merge{})
	reg.Register(workflow.NodeJavascript, executor.Script{})
	reg.Register(workflow.NodeApproval, executor.Approval{})
	reg.Register(workflow.NodeSelfReflect, &executor.SelfReflect{Runners: runners})
	return reg
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// decisionSource adapts store.Store to executor.ApprovalDecisionSource.
type decisionSource struct {
	st store.Store
}

func (d decisionSource) GetApprovalDecision(ctx context.Context, executionID, nodeID string) (bool, string, bool, error) {
	dec, err := d.st.GetApprovalDecision(ctx, executionID, nodeID)
	if err == store.ErrNotFound {
		return false, "", false, nil
	}
	if err != nil {
		return false, "", false, err
	}
	return dec.Approved, dec.Feedback, true, nil
}

// buildCostTracker and buildMetrics are split out from run.go purely so
// both run and replay can share identical wiring.
func buildCostTracker(runID string) *cost.Tracker {
	return cost.NewTracker(runID, "USD")
}

func buildMetrics(workflowID string) *metrics.Collector {
	return metrics.New(nil, workflowID)
}

func buildEvolutionHooks(st store.Store, historyRoot string) *evolution.Hooks {
	return evolution.NewHooks(st, historyRoot, evolution.Options{})
}
