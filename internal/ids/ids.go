// Package ids generates identifiers for executions, evolution records, and
// node run counters.
package ids

import "github.com/google/uuid"

// NewExecutionID returns a fresh, globally unique execution identifier.
func NewExecutionID() string {
	return "exec_" + uuid.NewString()
}

// NewEvolutionID returns a fresh, globally unique evolution record identifier.
func NewEvolutionID() string {
	return "evo_" + uuid.NewString()
}

// NewNodeID returns a fresh node identifier.
func NewNodeID() string {
	return "node_" + uuid.NewString()
}

// NewEdgeID returns a fresh edge identifier.
func NewEdgeID() string {
	return "edge_" + uuid.NewString()
}
