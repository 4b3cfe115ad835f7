// Package codex adapts the OpenAI Chat Completions API to the agent.Runner
// interface, backing the codex-agent node type. Grounded on the teacher's
// graph/model/openai adapter (message/tool conversion, single-choice
// response extraction), extended with chunked re-emission since this
// engine streams progress rather than returning one final response.
package codex

import (
	"context"
	"encoding/json"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/smogili1/agentflow/internal/agent"
)

// Runner implements agent.Runner over the OpenAI SDK.
type Runner struct {
	apiKey       string
	defaultModel string
}

// New returns a codex Runner using apiKey, defaulting to defaultModel when
// a request does not specify one.
func New(apiKey, defaultModel string) *Runner {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	return &Runner{apiKey: apiKey, defaultModel: defaultModel}
}

func (r *Runner) Run(ctx context.Context, req agent.Request, onEvent func(agent.StreamEvent)) (agent.Response, error) {
	if ctx.Err() != nil {
		return agent.Response{}, ctx.Err()
	}

	client := openaisdk.NewClient(option.WithAPIKey(r.apiKey))

	modelName := req.Model
	if modelName == "" {
		modelName = r.defaultModel
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(modelName),
		Messages: convertMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	if req.OutputFormat == agent.OutputJSON {
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		onEvent(agent.StreamEvent{Type: agent.StreamError, Err: err})
		return agent.Response{}, fmt.Errorf("codex agent: %w", err)
	}

	out := convertResponse(resp, onEvent)
	return out, nil
}

func convertMessages(messages []agent.Message) []openaisdk.ChatCompletionMessageParamUnion {
	result := make([]openaisdk.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case agent.RoleSystem:
			result[i] = openaisdk.SystemMessage(msg.Content)
		case agent.RoleAssistant:
			result[i] = openaisdk.AssistantMessage(msg.Content)
		default:
			result[i] = openaisdk.UserMessage(msg.Content)
		}
	}
	return result
}

func convertTools(tools []agent.ToolSpec) []openaisdk.ChatCompletionToolParam {
	result := make([]openaisdk.ChatCompletionToolParam, len(tools))
	for i, tool := range tools {
		result[i] = openaisdk.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openaisdk.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		}
	}
	return result
}

func convertResponse(resp *openaisdk.ChatCompletion, onEvent func(agent.StreamEvent)) agent.Response {
	if len(resp.Choices) == 0 {
		onEvent(agent.StreamEvent{Type: agent.StreamComplete})
		return agent.Response{}
	}

	msg := resp.Choices[0].Message
	if msg.Content != "" {
		onEvent(agent.StreamEvent{Type: agent.StreamTextDelta, Text: msg.Content})
	}

	for _, tc := range msg.ToolCalls {
		onEvent(agent.StreamEvent{
			Type:      agent.StreamToolUse,
			ToolName:  tc.Function.Name,
			ToolInput: parseToolInput(tc.Function.Arguments),
		})
	}

	out := agent.Response{
		Text:      msg.Content,
		SessionID: resp.ID,
		Usage: &agent.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}
	if len(msg.Content) > 0 {
		var asJSON interface{}
		if err := json.Unmarshal([]byte(msg.Content), &asJSON); err == nil {
			out.JSON = asJSON
		}
	}
	onEvent(agent.StreamEvent{Type: agent.StreamComplete, Text: msg.Content})
	return out
}

func parseToolInput(jsonStr string) map[string]interface{} {
	if jsonStr == "" {
		return nil
	}
	result := make(map[string]interface{})
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return map[string]interface{}{"_raw": jsonStr}
	}
	return result
}
