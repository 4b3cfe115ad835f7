package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		storeDSN   string
		workflowID string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded executions for a workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(storeDSN)
			if err != nil {
				return err
			}
			defer closeStore()

			summaries, err := st.ListExecutionSummaries(cmd.Context(), workflowID)
			if err != nil {
				return fmt.Errorf("list executions: %w", err)
			}

			if asJSON {
				body, _ := json.MarshalIndent(summaries, "", "  ")
				fmt.Println(string(body))
				return nil
			}

			for _, s := range summaries {
				fmt.Printf("%s\tstatus=%-9s started=%s completed=%s\n",
					s.ExecutionID, s.Status,
					s.StartedAt.Format("2006-01-02T15:04:05"),
					s.CompletedAt.Format("2006-01-02T15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&storeDSN, "store", "memory", "store backend: \"memory\", a sqlite file path, or a mysql DSN")
	cmd.Flags().StringVar(&workflowID, "workflow-id", "", "workflow id to list executions for (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit full execution summaries as JSON instead of a table")
	cmd.MarkFlagRequired("workflow-id")

	return cmd
}
