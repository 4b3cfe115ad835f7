package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/smogili1/agentflow/internal/agent"
	"github.com/smogili1/agentflow/internal/evolution"
	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/workflow"
)

// SelfReflect drives an agent.Runner to propose a workflow evolution, then
// routes it through svc.Evolution.Validate and (unless evolutionMode is
// suggest or dry-run) svc.Evolution.Apply. It never mutates the workflow
// its own node belongs to directly — the Evolution hooks own the
// snapshot/apply/journal sequence.
type SelfReflect struct {
	Runners *agent.Registry
}

func (s *SelfReflect) Validate(node workflow.Node) error {
	goal, _ := node.Config["reflectionGoal"].(string)
	if goal == "" {
		return &NodeConfigError{NodeID: node.ID, Message: "self-reflect node requires non-empty config.reflectionGoal"}
	}
	mode := evolutionMode(node)
	switch mode {
	case evolution.ModeSuggest, evolution.ModeAutoApply, evolution.ModeDryRun:
	default:
		return &NodeConfigError{NodeID: node.ID, Message: "self-reflect node config.evolutionMode must be suggest, auto-apply, or dry-run"}
	}
	agentType, _ := node.Config["agentType"].(string)
	if agentType == "" {
		return &NodeConfigError{NodeID: node.ID, Message: "self-reflect node requires non-empty config.agentType"}
	}
	if _, ok := s.Runners.Get(agentType); !ok {
		return &NodeConfigError{NodeID: node.ID, Message: "no agent runner registered for agentType " + agentType}
	}
	return nil
}

func (s *SelfReflect) Execute(ctx context.Context, node workflow.Node, ec *exec.Context, svc Services) (Result, error) {
	agentType, _ := node.Config["agentType"].(string)
	runner, _ := s.Runners.Get(agentType)

	mode := evolutionMode(node)
	goal := ec.Interpolate(stringOr(node.Config["reflectionGoal"], ""))

	messages := []agent.Message{}
	if sp, _ := node.Config["systemPrompt"].(string); sp != "" {
		messages = append(messages, agent.Message{Role: agent.RoleSystem, Content: ec.Interpolate(sp)})
	}
	messages = append(messages, agent.Message{Role: agent.RoleUser, Content: s.buildPrompt(node, ec, goal)})

	req := agent.Request{
		Messages:     messages,
		Model:        stringOr(node.Config["model"], ""),
		OutputFormat: agent.OutputJSON,
	}

	onEvent := func(ev agent.StreamEvent) {
		if svc.Emit != nil {
			svc.Emit(ev)
		}
	}

	resp, err := runner.Run(ctx, req, onEvent)
	if err != nil {
		return Result{}, &AgentError{NodeID: node.ID, Err: err}
	}

	proposal, err := parseWorkflowEvolution(resp)
	if err != nil {
		return Result{}, &AgentError{NodeID: node.ID, Err: fmt.Errorf("parse proposed evolution: %w", err)}
	}

	scope, maxMutations := selfReflectScope(node)
	valid, errs, sanitizedAny := svc.Evolution.Validate(ec.Workflow(), proposal, node.ID, scope, maxMutations)
	sanitized, _ := sanitizedAny.(evolution.WorkflowEvolution)

	output := map[string]interface{}{
		"evolution":        sanitized,
		"applied":          false,
		"validationErrors": errs,
	}

	if !valid {
		return Result{Output: output}, nil
	}

	if mode == evolution.ModeSuggest || mode == evolution.ModeDryRun {
		return Result{Output: output}, nil
	}

	applied, before, after, err := svc.Evolution.Apply(ec.Workflow(), sanitized, svc.ExecutionID, node.ID)
	if err != nil {
		return Result{}, &AgentError{NodeID: node.ID, Err: fmt.Errorf("apply evolution: %w", err)}
	}
	output["applied"] = applied
	output["beforeSnapshot"] = before
	output["afterSnapshot"] = after
	return Result{Output: output}, nil
}

func (s *SelfReflect) buildPrompt(node workflow.Node, ec *exec.Context, goal string) string {
	includeTranscripts, _ := node.Config["includeTranscripts"].(bool)
	prompt := "Reflection goal: " + goal + "\n\n" +
		"Propose a workflow evolution as a JSON object with fields " +
		"reasoning, mutations (an ordered list of mutation operations), " +
		"expectedImpact, and riskAssessment."
	if includeTranscripts {
		if transcripts, ok := ec.Variable("transcripts"); ok {
			if body, err := json.Marshal(transcripts); err == nil {
				prompt += "\n\nRecent node transcripts:\n" + string(body)
			}
		}
	}
	return prompt
}

func evolutionMode(node workflow.Node) evolution.Mode {
	return evolution.Mode(stringOr(node.Config["evolutionMode"], string(evolution.ModeSuggest)))
}

func selfReflectScope(node workflow.Node) ([]string, int) {
	maxMutations := int(floatOr(node.Config["maxMutations"], 10))
	var scope []string
	if raw, ok := node.Config["scope"].([]interface{}); ok {
		for _, v := range raw {
			if str, ok := v.(string); ok {
				scope = append(scope, str)
			}
		}
	}
	return scope, maxMutations
}

// parseWorkflowEvolution decodes a runner's JSON response text into a
// WorkflowEvolution, preferring the structured JSON value if the runner
// populated one.
func parseWorkflowEvolution(resp agent.Response) (evolution.WorkflowEvolution, error) {
	var evo evolution.WorkflowEvolution
	if resp.JSON != nil {
		body, err := json.Marshal(resp.JSON)
		if err != nil {
			return evo, err
		}
		if err := json.Unmarshal(body, &evo); err != nil {
			return evo, err
		}
		return evo, nil
	}
	if resp.Text == "" {
		return evo, fmt.Errorf("agent returned no output")
	}
	if err := json.Unmarshal([]byte(resp.Text), &evo); err != nil {
		return evo, err
	}
	return evo, nil
}
