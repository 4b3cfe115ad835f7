// Command agentflowd wraps the DAG execution engine for local and manual
// runs: load a workflow definition, run it, replay it from a checkpoint
// node, and resolve pending approvals from a separate invocation. Grounded
// on None9527/NGOClaw's gateway/cmd/cli/main.go — a root cobra.Command with
// one flat level of subcommands and no nested command groups, since this
// engine's surface does not need NGOClaw's deeper serve/doctor tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "agentflowd",
		Short: "Run, replay, and resolve approvals for agentflow DAG workflows",
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newApproveCmd())
	root.AddCommand(newRejectCmd())
	root.AddCommand(newHistoryCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
