package evolution

import "github.com/smogili1/agentflow/internal/workflow"

// Schema describes the recognized config paths for one node type: which
// top-level fields exist, which are required, and which (if any) is the
// declared "model" property. Deliberately shallow — it exists to gate
// update-node-config/add-node mutations, not to fully validate a node's
// configuration the way an executor's Validate does.
type Schema struct {
	Fields       map[string]bool
	Required     []string
	HasModelProp bool
	IsAgentType  bool
}

// Registry maps a node type to its Schema.
type Registry map[workflow.NodeType]Schema

// DefaultRegistry returns the schema registry for this engine's built-in
// node types, mirroring the config fields each executor's Validate/Execute
// reads.
func DefaultRegistry() Registry {
	agentFields := map[string]bool{
		"userQuery": true, "model": true, "systemPrompt": true, "tools": true,
		"mcpServers": true, "workingDirectory": true, "maxTurns": true,
		"timeout": true, "conversationMode": true, "outputConfig": true,
		"rejectionHandler": true, "agentType": true,
	}
	return Registry{
		workflow.NodeInput:  {Fields: map[string]bool{}},
		workflow.NodeOutput: {Fields: map[string]bool{}},
		workflow.NodeClaudeAgent: {
			Fields: agentFields, Required: []string{"userQuery"}, HasModelProp: true, IsAgentType: true,
		},
		workflow.NodeCodexAgent: {
			Fields: agentFields, Required: []string{"userQuery"}, HasModelProp: true, IsAgentType: true,
		},
		workflow.NodeCondition: {
			Fields: map[string]bool{"rules": true}, Required: []string{"rules"},
		},
		workflow.NodeMerge: {
			Fields: map[string]bool{"strategy": true, "timeout": true},
		},
		workflow.NodeJavascript: {
			Fields: map[string]bool{"code": true, "timeout": true, "inputMappings": true}, Required: []string{"code"},
		},
		workflow.NodeApproval: {
			Fields: map[string]bool{
				"promptMessage": true, "feedbackPrompt": true, "inputSelections": true,
				"timeoutMinutes": true, "timeoutAction": true,
			},
			Required: []string{"promptMessage", "inputSelections"},
		},
		workflow.NodeSelfReflect: {
			Fields: map[string]bool{
				"reflectionGoal": true, "agentType": true, "model": true, "evolutionMode": true,
				"scope": true, "maxMutations": true, "includeTranscripts": true, "systemPrompt": true,
			},
			Required: []string{"reflectionGoal"}, HasModelProp: true,
		},
	}
}

// HasField reports whether name (the first dotted segment of a config path)
// is a recognized field for this schema.
func (s Schema) HasField(name string) bool {
	return s.Fields[name]
}
