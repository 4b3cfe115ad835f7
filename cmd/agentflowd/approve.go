package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/smogili1/agentflow/internal/store"
)

func newApproveCmd() *cobra.Command {
	return newDecisionCmd("approve", true)
}

func newRejectCmd() *cobra.Command {
	return newDecisionCmd("reject", false)
}

// newDecisionCmd builds the approve/reject subcommands, which differ only
// in the Approved value they record. Both write a single store.
// ApprovalDecision row and return immediately — the process actually
// running the workflow picks it up on its next poll, it never needs to
// be reached directly.
func newDecisionCmd(use string, approved bool) *cobra.Command {
	var (
		storeDSN    string
		executionID string
		nodeID      string
		feedback    string
	)

	cmd := &cobra.Command{
		Use:   use,
		Short: decisionShort(use),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeStore, err := openStore(storeDSN)
			if err != nil {
				return err
			}
			defer closeStore()

			return st.SaveApprovalDecision(cmd.Context(), &store.ApprovalDecision{
				ExecutionID: executionID,
				NodeID:      nodeID,
				Approved:    approved,
				Feedback:    feedback,
				DecidedAt:   time.Now(),
			})
		},
	}

	cmd.Flags().StringVar(&storeDSN, "store", "memory", "store backend: \"memory\", a sqlite file path, or a mysql DSN")
	cmd.Flags().StringVar(&executionID, "execution", "", "execution id the pending approval node belongs to (required)")
	cmd.Flags().StringVar(&nodeID, "node", "", "approval node id to resolve (required)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "feedback text recorded alongside the decision")
	cmd.MarkFlagRequired("execution")
	cmd.MarkFlagRequired("node")

	return cmd
}

func decisionShort(use string) string {
	if use == "approve" {
		return "Approve a pending approval node from a separate invocation"
	}
	return "Reject a pending approval node from a separate invocation"
}
