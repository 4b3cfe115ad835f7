// Package claude adapts the Anthropic Messages API to the agent.Runner
// interface, backing the claude-agent node type. Grounded on the teacher's
// graph/model/anthropic adapter (message/tool conversion, system-prompt
// extraction), extended with chunked re-emission since this engine streams
// progress rather than returning one final response.
package claude

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/smogili1/agentflow/internal/agent"
)

// Runner implements agent.Runner over the Anthropic SDK.
type Runner struct {
	apiKey       string
	defaultModel string
}

// New returns a claude Runner using apiKey, defaulting to defaultModel when
// a request does not specify one.
func New(apiKey, defaultModel string) *Runner {
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-5-20250929"
	}
	return &Runner{apiKey: apiKey, defaultModel: defaultModel}
}

func (r *Runner) Run(ctx context.Context, req agent.Request, onEvent func(agent.StreamEvent)) (agent.Response, error) {
	if ctx.Err() != nil {
		return agent.Response{}, ctx.Err()
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(r.apiKey))

	modelName := req.Model
	if modelName == "" {
		modelName = r.defaultModel
	}

	system, messages := extractSystem(req.Messages)
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(modelName),
		Messages:  messages,
		MaxTokens: 4096,
	}
	if system != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		onEvent(agent.StreamEvent{Type: agent.StreamError, Err: err})
		return agent.Response{}, fmt.Errorf("claude agent: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropicsdk.TextBlock:
			text += b.Text
			onEvent(agent.StreamEvent{Type: agent.StreamTextDelta, Text: b.Text})
		case anthropicsdk.ToolUseBlock:
			input := map[string]interface{}{}
			onEvent(agent.StreamEvent{Type: agent.StreamToolUse, ToolName: b.Name, ToolInput: input})
		}
	}
	onEvent(agent.StreamEvent{Type: agent.StreamComplete, Text: text})

	return agent.Response{
		Text:      text,
		SessionID: string(resp.ID),
		Usage:     &agent.Usage{InputTokens: int(resp.Usage.InputTokens), OutputTokens: int(resp.Usage.OutputTokens)},
	}, nil
}

func extractSystem(messages []agent.Message) (string, []anthropicsdk.MessageParam) {
	var system string
	out := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case agent.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case agent.RoleAssistant:
			out = append(out, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	return system, out
}

func convertTools(tools []agent.ToolSpec) []anthropicsdk.ToolUnionParam {
	out := make([]anthropicsdk.ToolUnionParam, len(tools))
	for i, t := range tools {
		var properties any
		var required []string
		if t.Schema != nil {
			properties = t.Schema["properties"]
			if req, ok := t.Schema["required"].([]string); ok {
				required = req
			}
		}
		out[i] = anthropicsdk.ToolUnionParam{
			OfTool: &anthropicsdk.ToolParam{
				Name:        t.Name,
				Description: anthropicsdk.String(t.Description),
				InputSchema: anthropicsdk.ToolInputSchemaParam{Properties: properties, Required: required},
			},
		}
	}
	return out
}
