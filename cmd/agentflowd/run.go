package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smogili1/agentflow/internal/approval"
	"github.com/smogili1/agentflow/internal/emit"
	"github.com/smogili1/agentflow/internal/engine"
	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/store"
	"github.com/smogili1/agentflow/internal/workflow"
)

func newRunCmd() *cobra.Command {
	var (
		workflowPath string
		storeDSN     string
		historyDir   string
		inputJSON    string
		maxConc      int
		wallClock    time.Duration
		jsonLog      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a workflow definition to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(workflowPath)
			if err != nil {
				return err
			}

			var input interface{}
			if inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
					return fmt.Errorf("parse --input: %w", err)
				}
			}

			st, closeStore, err := openStore(storeDSN)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.SaveWorkflow(cmd.Context(), wf); err != nil {
				return fmt.Errorf("save workflow: %w", err)
			}

			summary, output, runErr := runWorkflow(cmd.Context(), wf, st, input, runOptions{
				historyDir: historyDir,
				maxConc:    maxConc,
				wallClock:  wallClock,
				jsonLog:    jsonLog,
			})

			if saveErr := st.SaveExecutionSummary(cmd.Context(), summary); saveErr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to persist execution summary: %v\n", saveErr)
			}

			if runErr != nil {
				return runErr
			}

			body, _ := json.MarshalIndent(output, "", "  ")
			fmt.Println(string(body))
			return nil
		},
	}

	cmd.Flags().StringVar(&workflowPath, "workflow", "", "path to the workflow definition JSON file (required)")
	cmd.Flags().StringVar(&storeDSN, "store", "memory", "store backend: \"memory\", a sqlite file path, or a mysql DSN")
	cmd.Flags().StringVar(&historyDir, "history-dir", "./agentflow-evolution", "directory for self-reflect evolution history journals")
	cmd.Flags().StringVar(&inputJSON, "input", "", "JSON-encoded input value for the workflow's input node")
	cmd.Flags().IntVar(&maxConc, "max-concurrent", 0, "override MaxConcurrentNodes (0 = engine default)")
	cmd.Flags().DurationVar(&wallClock, "timeout", 0, "override RunWallClockBudget (0 = engine default)")
	cmd.Flags().BoolVar(&jsonLog, "json-log", false, "emit progress as JSONL instead of human-readable lines")
	cmd.MarkFlagRequired("workflow")

	return cmd
}

type runOptions struct {
	historyDir string
	maxConc    int
	wallClock  time.Duration
	jsonLog    bool
}

// runWorkflow builds the engine for wf, executes it once, and returns a
// store.ExecutionSummary assembled from the engine's per-node state — the
// engine itself has no store dependency, so the caller (here, and again in
// replay.go) is responsible for persisting what it ran.
func runWorkflow(ctx context.Context, wf *workflow.Workflow, st store.Store, input interface{}, ro runOptions) (*store.ExecutionSummary, interface{}, error) {
	registry := buildRegistry()
	approvals := approval.NewRegistry()
	evoHooks := buildEvolutionHooks(st, ro.historyDir)
	costTracker := buildCostTracker(wf.ID)
	metricsCollector := buildMetrics(wf.ID)

	bus := &printingBus{inner: emit.NewBufferedEmitter(256), jsonLog: ro.jsonLog}

	opts := []engine.Option{
		engine.WithCostTracker(costTracker),
		engine.WithMetrics(metricsCollector),
		engine.WithDecisions(decisionSource{st: st}),
	}
	if ro.maxConc > 0 {
		opts = append(opts, engine.WithMaxConcurrentNodes(ro.maxConc))
	}
	if ro.wallClock > 0 {
		opts = append(opts, engine.WithRunWallClockBudget(ro.wallClock))
	}

	eng, err := engine.New(wf, registry, bus, approvals, evoHooks, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}

	startedAt := time.Now()
	output, runErr := eng.Execute(ctx, input)
	completedAt := time.Now()

	executionID := bus.capturedExecutionID()
	summary := &store.ExecutionSummary{
		ExecutionID: executionID,
		WorkflowID:  wf.ID,
		Input:       input,
		Output:      output,
		NodeOutputs: collectNodeOutputs(eng, executionID, wf),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
	}
	switch {
	case runErr == nil:
		summary.Status = "complete"
	case isCancelled(runErr):
		summary.Status = "cancelled"
		summary.Error = runErr.Error()
	default:
		summary.Status = "error"
		summary.Error = runErr.Error()
	}

	return summary, output, runErr
}

func isCancelled(err error) bool {
	_, ok := err.(*engine.Cancelled)
	return ok
}

func collectNodeOutputs(eng *engine.DAGEngine, executionID string, wf *workflow.Workflow) map[string]interface{} {
	out := make(map[string]interface{})
	for _, n := range wf.Nodes {
		state, ok := eng.GetNodeState(executionID, n.ID)
		if !ok || state.Status != exec.StatusComplete {
			continue
		}
		out[n.ID] = state.Result
	}
	return out
}

func loadWorkflow(path string) (*workflow.Workflow, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	var wf workflow.Workflow
	if err := json.Unmarshal(body, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}
	if errs := workflow.Validate(&wf); len(errs) > 0 {
		return nil, fmt.Errorf("workflow validation failed: %w", errs)
	}
	return &wf, nil
}

// printingBus wraps a Bus to print a human-readable or JSONL line per
// event to stdout as it is emitted, and to capture the execution id off
// the first execution-start event — the engine generates that id itself
// and never returns it, so this is the only place a caller can learn it.
type printingBus struct {
	inner   emit.Bus
	jsonLog bool

	executionID string
}

func (p *printingBus) Emit(event emit.Event) {
	if event.Type == emit.ExecutionStart && p.executionID == "" {
		p.executionID = event.ExecutionID
	}
	if p.jsonLog {
		body, _ := json.Marshal(map[string]interface{}{
			"type": event.Type, "executionId": event.ExecutionID,
			"nodeId": event.NodeID, "timestamp": event.Timestamp,
		})
		fmt.Fprintln(os.Stderr, string(body))
	} else {
		fmt.Fprintf(os.Stderr, "[%s] %-18s exec=%s node=%s\n",
			event.Timestamp.Format("15:04:05.000"), event.Type, event.ExecutionID, event.NodeID)
	}
	p.inner.Emit(event)
}

func (p *printingBus) EmitBatch(events []emit.Event) error {
	for _, e := range events {
		p.Emit(e)
	}
	return nil
}

func (p *printingBus) Flush() error { return p.inner.Flush() }

func (p *printingBus) Subscribe(executionID string) (<-chan emit.Event, func()) {
	return p.inner.Subscribe(executionID)
}

func (p *printingBus) capturedExecutionID() string { return p.executionID }
