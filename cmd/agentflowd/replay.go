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
	"github.com/smogili1/agentflow/internal/replay"
	"github.com/smogili1/agentflow/internal/store"
	"github.com/smogili1/agentflow/internal/workflow"
)

func newReplayCmd() *cobra.Command {
	var (
		workflowPath       string
		sourceWorkflowPath string
		storeDSN           string
		historyDir         string
		sourceExecutionID  string
		fromNodeID         string
		workingDir         string
		inputJSON          string
		jsonLog            bool
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resume a workflow from a prior execution, re-running only what changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := loadWorkflow(workflowPath)
			if err != nil {
				return err
			}

			var sourceWorkflow *workflow.Workflow
			if sourceWorkflowPath != "" {
				sourceWorkflow, err = loadWorkflow(sourceWorkflowPath)
				if err != nil {
					return err
				}
			}

			st, closeStore, err := openStore(storeDSN)
			if err != nil {
				return err
			}
			defer closeStore()

			source, err := st.GetExecutionSummary(cmd.Context(), sourceExecutionID)
			if err != nil {
				return fmt.Errorf("load source execution: %w", err)
			}

			plan, err := replay.Plan(wf, sourceWorkflow, source, fromNodeID, workingDir)
			if err != nil {
				return fmt.Errorf("plan replay: %w", err)
			}
			for _, w := range plan.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w)
			}
			fmt.Fprintf(os.Stderr, "reused=%d re-executed=%d new=%d\n", len(plan.Reused), len(plan.ReExecuted), len(plan.New))

			input := source.Input
			if inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &input); err != nil {
					return fmt.Errorf("parse --input: %w", err)
				}
			}

			if err := st.SaveWorkflow(cmd.Context(), wf); err != nil {
				return fmt.Errorf("save workflow: %w", err)
			}

			summary, output, runErr := replayWorkflow(cmd.Context(), wf, st, plan, input, replayOptions{
				historyDir: historyDir,
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

	cmd.Flags().StringVar(&workflowPath, "workflow", "", "path to the current workflow definition JSON file (required)")
	cmd.Flags().StringVar(&sourceWorkflowPath, "source-workflow", "", "path to the workflow definition the source execution ran against, for configuration-drift detection (optional)")
	cmd.Flags().StringVar(&storeDSN, "store", "memory", "store backend: \"memory\", a sqlite file path, or a mysql DSN")
	cmd.Flags().StringVar(&historyDir, "history-dir", "./agentflow-evolution", "directory for self-reflect evolution history journals")
	cmd.Flags().StringVar(&sourceExecutionID, "from-execution", "", "execution id to reuse recorded node outputs from (required)")
	cmd.Flags().StringVar(&fromNodeID, "from-node", "", "node id to resume execution at (required)")
	cmd.Flags().StringVar(&workingDir, "working-dir", "", "override the working directory for the replay run")
	cmd.Flags().StringVar(&inputJSON, "input", "", "JSON-encoded input value, overriding the source execution's recorded input")
	cmd.Flags().BoolVar(&jsonLog, "json-log", false, "emit progress as JSONL instead of human-readable lines")
	cmd.MarkFlagRequired("workflow")
	cmd.MarkFlagRequired("from-execution")
	cmd.MarkFlagRequired("from-node")

	return cmd
}

type replayOptions struct {
	historyDir string
	jsonLog    bool
}

// replayWorkflow mirrors runWorkflow but seeds the engine from plan's
// reused outputs via ExecuteFrom instead of starting a fresh context, so a
// replay run never re-executes a node the planner decided to reuse.
func replayWorkflow(ctx context.Context, wf *workflow.Workflow, st store.Store, plan *replay.Plan, input interface{}, ro replayOptions) (*store.ExecutionSummary, interface{}, error) {
	registry := buildRegistry()
	approvals := approval.NewRegistry()
	evoHooks := buildEvolutionHooks(st, ro.historyDir)
	costTracker := buildCostTracker(wf.ID)
	metricsCollector := buildMetrics(wf.ID)

	bus := &printingBus{inner: emit.NewBufferedEmitter(256), jsonLog: ro.jsonLog}

	eng, err := engine.New(wf, registry, bus, approvals, evoHooks,
		engine.WithCostTracker(costTracker),
		engine.WithMetrics(metricsCollector),
		engine.WithDecisions(decisionSource{st: st}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}

	ec := replay.Seed(wf, plan, input)

	startedAt := time.Now()
	output, runErr := eng.ExecuteFrom(ctx, ec)
	completedAt := time.Now()

	executionID := plan.ExecutionID
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
