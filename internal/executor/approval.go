package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/smogili1/agentflow/internal/approval"
	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/workflow"
)

// TimeoutAction is an approval node's configured behavior when its timeout
// elapses with no human response.
type TimeoutAction string

const (
	TimeoutApprove TimeoutAction = "approve"
	TimeoutReject  TimeoutAction = "reject"
	TimeoutFail    TimeoutAction = "fail"
)

// Approval suspends on the process-wide ApprovalRegistry until resolved by
// submission, cancellation, timeout, or engine-wide cancellation — exactly
// one of those four paths ever fires per node instance.
type Approval struct{}

func (Approval) Validate(node workflow.Node) error {
	prompt, _ := node.Config["promptMessage"].(string)
	if prompt == "" {
		return &NodeConfigError{NodeID: node.ID, Message: "approval node requires non-empty config.promptMessage"}
	}
	selections, _ := node.Config["inputSelections"].([]interface{})
	if len(selections) == 0 {
		return &NodeConfigError{NodeID: node.ID, Message: "approval node requires at least one inputSelections entry"}
	}
	if v, ok := node.Config["timeoutMinutes"]; ok {
		if minutes, ok := toFloat(v); !ok || minutes < 0 {
			return &NodeConfigError{NodeID: node.ID, Message: "approval node config.timeoutMinutes must be >= 0"}
		}
	}
	return nil
}

func (Approval) Execute(ctx context.Context, node workflow.Node, ec *exec.Context, svc Services) (Result, error) {
	prompt := ec.Interpolate(node.Config["promptMessage"].(string))
	feedbackPrompt, _ := node.Config["feedbackPrompt"].(string)
	if feedbackPrompt != "" {
		feedbackPrompt = ec.Interpolate(feedbackPrompt)
	}
	timeoutAction := TimeoutAction(stringOr(node.Config["timeoutAction"], string(TimeoutFail)))

	display := gatherDisplayData(node, ec)

	var timeoutAt *time.Time
	timeout := svc.ApprovalDefaultTimeout
	if minutes, ok := toFloat(node.Config["timeoutMinutes"]); ok && minutes > 0 {
		timeout = time.Duration(minutes * float64(time.Minute))
	}
	if timeout > 0 {
		at := time.Now().Add(timeout)
		timeoutAt = &at
	}

	req := &approval.Request{
		NodeID:         node.ID,
		NodeName:       node.Name,
		PromptMessage:  prompt,
		FeedbackPrompt: feedbackPrompt,
		DisplayData:    display,
		TimeoutAt:      timeoutAt,
	}

	resultCh := make(chan approval.Response, 1)
	errCh := make(chan error, 1)

	onTimeout := func() {
		switch timeoutAction {
		case TimeoutApprove:
			resultCh <- approval.Response{Approved: true, RespondedAt: time.Now()}
		case TimeoutReject:
			resultCh <- approval.Response{Approved: false, Feedback: "Timed out waiting for approval", RespondedAt: time.Now()}
		default:
			errCh <- &ApprovalTimeoutError{NodeID: node.ID}
		}
	}

	svc.Approvals.Register(svc.ExecutionID, node.ID,
		func(resp approval.Response) { resultCh <- resp },
		func(err error) { errCh <- err },
		timeout, onTimeout,
	)

	if svc.OnWaiting != nil {
		svc.OnWaiting(req)
	}

	if svc.Decisions != nil {
		pollCtx, stopPoll := context.WithCancel(ctx)
		defer stopPoll()
		go pollApprovalDecision(pollCtx, svc, node.ID)
	}

	select {
	case <-ctx.Done():
		svc.Approvals.Cancel(svc.ExecutionID, node.ID)
		return Result{}, fmt.Errorf("execution interrupted")
	case err := <-errCh:
		return Result{}, err
	case resp := <-resultCh:
		ec.SetVariable(fmt.Sprintf("node.%s.approved", node.ID), resp.Approved)
		ec.SetVariable(fmt.Sprintf("node.%s.feedback", node.ID), resp.Feedback)
		handle := "rejected"
		if resp.Approved {
			handle = "approved"
		}
		return Result{
			Output: map[string]interface{}{
				"approved":      resp.Approved,
				"feedback":      resp.Feedback,
				"respondedAt":   resp.RespondedAt,
				"displayedData": display,
			},
			Handle: handle,
		}, nil
	}
}

// pollApprovalDecision watches the store for a decision recorded by a
// separate `agentflowd approve`/`reject` invocation and, once found,
// submits it to the same Approvals registry an in-process caller would use
// — so the rest of Execute's select never needs to know which path
// resolved it. Stops as soon as ctx is done (either the node resolved some
// other way, or the run was cancelled).
func pollApprovalDecision(ctx context.Context, svc Services, nodeID string) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			approved, feedback, found, err := svc.Decisions.GetApprovalDecision(ctx, svc.ExecutionID, nodeID)
			if err != nil || !found {
				continue
			}
			svc.Approvals.Submit(svc.ExecutionID, nodeID, approval.Response{
				Approved: approved, Feedback: feedback, RespondedAt: time.Now(),
			})
			return
		}
	}
}

func gatherDisplayData(node workflow.Node, ec *exec.Context) map[string]interface{} {
	display := map[string]interface{}{}
	selections, _ := node.Config["inputSelections"].([]interface{})
	for _, raw := range selections {
		sel, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		ref := stringOr(sel["nodeName"], stringOr(sel["nodeId"], ""))
		if ref == "" {
			continue
		}
		nodeID := ec.NodeIDForName(ref)
		out, ok := ec.Output(nodeID)
		if !ok {
			continue
		}
		name := ec.NodeName(nodeID)

		fields, _ := sel["fields"].([]interface{})
		if len(fields) == 0 {
			display[name] = out
			continue
		}
		sub := map[string]interface{}{}
		for _, f := range fields {
			path, ok := f.(string)
			if !ok {
				continue
			}
			if v, found := ec.ResolveReference(ref + "." + path); found {
				sub[path] = v
			}
		}
		display[name] = sub
	}
	return display
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
