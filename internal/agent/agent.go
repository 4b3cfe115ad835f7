// Package agent defines the AgentRunner abstraction the claude-agent and
// codex-agent (and, as an enrichment beyond the distilled spec's two named
// node types, gemini-backed) node executors drive. It plays the role the
// teacher's graph/model package plays for its generic ChatModel interface,
// extended with a streaming method since this engine re-emits every chunk
// as a node-output event rather than returning one final response.
package agent

import "context"

// Role constants, carried over from the teacher's graph/model package.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn in a conversation sent to a Runner.
type Message struct {
	Role    string
	Content string
}

// ToolSpec describes a tool the agent may call, in JSON-Schema-shaped form.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// OutputFormat selects how a Runner's final text is interpreted.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// ConversationMode controls whether a rejection re-run resumes a prior
// session or starts fresh.
type ConversationMode string

const (
	ConversationFresh   ConversationMode = "fresh"
	ConversationPersist  ConversationMode = "persist"
)

// Request is everything a claude-agent/codex-agent node's configuration
// supplies to a Runner for one invocation.
type Request struct {
	Messages         []Message
	Model            string
	Tools            []ToolSpec
	MCPServers       []string
	WorkingDirectory string
	MaxTurns         int
	OutputFormat     OutputFormat
	OutputSchema     map[string]interface{}
	SessionID        string // non-empty to resume a prior conversation
}

// StreamEventType tags a Runner's streaming sub-events.
type StreamEventType string

const (
	StreamTextDelta StreamEventType = "text-delta"
	StreamToolUse   StreamEventType = "tool-use"
	StreamToolResult StreamEventType = "tool-result"
	StreamThinking  StreamEventType = "thinking"
	StreamTodoList  StreamEventType = "todo-list"
	StreamComplete  StreamEventType = "complete"
	StreamError     StreamEventType = "error"
)

// StreamEvent is one chunk of a Runner's streaming output.
type StreamEvent struct {
	Type       StreamEventType
	Text       string
	ToolName   string
	ToolInput  map[string]interface{}
	ToolResult interface{}
	Todos      []string
	Err        error
}

// Usage reports a single invocation's token accounting, when the backend
// exposes one, so a CostTracker can attribute spend per node/model.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Response is a Runner's final, assembled output.
type Response struct {
	Text      string
	JSON      interface{}
	SessionID string
	Usage     *Usage // nil when the backend did not report usage
}

// Runner is the abstract capability this engine's agent node executors
// drive. Implementations must re-emit progress via onEvent before
// returning and must observe ctx cancellation between streaming chunks.
type Runner interface {
	Run(ctx context.Context, req Request, onEvent func(StreamEvent)) (Response, error)
}

// Registry resolves a model-backend name ("claude", "codex", "gemini", or a
// caller-defined tag) to a Runner instance, used by the claude-agent/
// codex-agent executors and by self-reflect to pick an AgentRunner by the
// node's configured agentType/model.
type Registry struct {
	runners map[string]Runner
}

// NewRegistry returns an empty runner registry.
func NewRegistry() *Registry { return &Registry{runners: make(map[string]Runner)} }

// Register installs runner under name.
func (r *Registry) Register(name string, runner Runner) { r.runners[name] = runner }

// Get returns the runner registered under name, or false if absent.
func (r *Registry) Get(name string) (Runner, bool) {
	runner, ok := r.runners[name]
	return runner, ok
}
