package executor

import (
	"context"
	"strings"
	"time"

	"github.com/smogili1/agentflow/internal/agent"
	"github.com/smogili1/agentflow/internal/exec"
	"github.com/smogili1/agentflow/internal/policy"
	"github.com/smogili1/agentflow/internal/workflow"
)

// Agent drives a backend-agnostic agent.Runner for the claude-agent and
// codex-agent node types (and, as an enrichment, any other tag registered
// in the agent.Registry under a node's config.agentType). One Agent
// instance is shared by every node of every agent-backed type; the backend
// to call is resolved per node from config.agentType.
type Agent struct {
	Runners *agent.Registry
}

func (a *Agent) Validate(node workflow.Node) error {
	query, _ := node.Config["userQuery"].(string)
	if query == "" {
		return &NodeConfigError{NodeID: node.ID, Message: "agent node requires non-empty config.userQuery"}
	}
	agentType, _ := node.Config["agentType"].(string)
	if agentType == "" {
		agentType = defaultAgentType(node.Type)
	}
	if _, ok := a.Runners.Get(agentType); !ok {
		return &NodeConfigError{NodeID: node.ID, Message: "no agent runner registered for agentType " + agentType}
	}
	return nil
}

func (a *Agent) Execute(ctx context.Context, node workflow.Node, ec *exec.Context, svc Services) (Result, error) {
	agentType, _ := node.Config["agentType"].(string)
	if agentType == "" {
		agentType = defaultAgentType(node.Type)
	}
	runner, _ := a.Runners.Get(agentType)

	timeout := policy.Timeout(configDuration(node.Config["timeout"]), svc.DefaultNodeTimeout)
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	messages := a.buildMessages(node, ec)

	req := agent.Request{
		Messages:         messages,
		Model:            stringOr(node.Config["model"], ""),
		Tools:            parseToolSpecs(node.Config["tools"]),
		MCPServers:       parseStringList(node.Config["mcpServers"]),
		WorkingDirectory: ec.WorkingDirectory,
		MaxTurns:         int(floatOr(node.Config["maxTurns"], 0)),
		OutputFormat:     agent.OutputFormat(stringOr(outputConfigField(node, "format"), string(agent.OutputText))),
		OutputSchema:     outputConfigSchema(node),
	}
	if persistSession(node.Config["conversationMode"]) {
		if sid, ok := ec.Variable("node." + node.ID + ".sessionID"); ok {
			if s, ok := sid.(string); ok {
				req.SessionID = s
			}
		}
	}

	onEvent := func(ev agent.StreamEvent) {
		if svc.Emit != nil {
			svc.Emit(ev)
		}
	}

	resp, err := runner.Run(runCtx, req, onEvent)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return Result{}, &TimeoutError{NodeID: node.ID, Timeout: timeout.String()}
		}
		return Result{}, &AgentError{NodeID: node.ID, Err: err}
	}

	if resp.SessionID != "" {
		ec.SetVariable("node."+node.ID+".sessionID", resp.SessionID)
	}

	if resp.Usage != nil && svc.CostTracker != nil {
		model := req.Model
		if model == "" {
			model = agentType
		}
		_ = svc.CostTracker.RecordLLMCall(model, resp.Usage.InputTokens, resp.Usage.OutputTokens, node.ID)
	}

	output := map[string]interface{}{"text": resp.Text}
	if resp.JSON != nil {
		output["json"] = resp.JSON
	}
	return Result{Output: output}, nil
}

// buildMessages assembles the conversation sent to the runner: an optional
// system prompt, the interpolated user query, and — on a rejection re-run —
// the rejectionHandler.feedbackTemplate with {{feedback}} substituted,
// prepended ahead of the query.
func (a *Agent) buildMessages(node workflow.Node, ec *exec.Context) []agent.Message {
	var messages []agent.Message
	if sp, _ := node.Config["systemPrompt"].(string); sp != "" {
		messages = append(messages, agent.Message{Role: agent.RoleSystem, Content: ec.Interpolate(sp)})
	}

	query := ec.Interpolate(stringOr(node.Config["userQuery"], ""))
	if feedback, ok := ec.Feedback(node.ID); ok && feedback != "" {
		template := stringOr(rejectionHandlerField(node, "feedbackTemplate"), "{{feedback}}")
		prefix := strings.ReplaceAll(template, "{{feedback}}", feedback)
		query = prefix + "\n\n" + query
	}
	messages = append(messages, agent.Message{Role: agent.RoleUser, Content: query})
	return messages
}

func defaultAgentType(t workflow.NodeType) string {
	switch t {
	case "codex-agent":
		return "codex"
	case "claude-agent":
		return "claude"
	default:
		return string(t)
	}
}

func persistSession(v interface{}) bool {
	s, _ := v.(string)
	return s == string(agent.ConversationPersist)
}

func outputConfigField(node workflow.Node, key string) interface{} {
	oc, _ := node.Config["outputConfig"].(map[string]interface{})
	if oc == nil {
		return nil
	}
	return oc[key]
}

func outputConfigSchema(node workflow.Node) map[string]interface{} {
	v := outputConfigField(node, "schema")
	schema, _ := v.(map[string]interface{})
	return schema
}

func rejectionHandlerField(node workflow.Node, key string) interface{} {
	rh, _ := node.Config["rejectionHandler"].(map[string]interface{})
	if rh == nil {
		return nil
	}
	return rh[key]
}

func parseToolSpecs(v interface{}) []agent.ToolSpec {
	raw, _ := v.([]interface{})
	if len(raw) == 0 {
		return nil
	}
	out := make([]agent.ToolSpec, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		schema, _ := m["schema"].(map[string]interface{})
		out = append(out, agent.ToolSpec{
			Name:        stringOr(m["name"], ""),
			Description: stringOr(m["description"], ""),
			Schema:      schema,
		})
	}
	return out
}

func parseStringList(v interface{}) []string {
	raw, _ := v.([]interface{})
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func floatOr(v interface{}, fallback float64) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	return fallback
}

func configDuration(v interface{}) time.Duration {
	switch t := v.(type) {
	case float64:
		return time.Duration(t) * time.Second
	case int:
		return time.Duration(t) * time.Second
	case string:
		if d, err := time.ParseDuration(t); err == nil {
			return d
		}
	}
	return 0
}
