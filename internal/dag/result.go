package dag

import (
	"time"

	"lawgraph/internal/law"
	"lawgraph/internal/value"
)

// GraphResult is the summary of one graph run.
type GraphResult struct {
	RunID     string
	GraphHash GraphHash
	Phase     RunPhase

	// Order is the order in which nodes were started.
	Order []string

	// FinalState is the terminal state of each node.
	FinalState ExecutionState

	// Results holds every node's result, skipped nodes included.
	Results map[string]law.Result

	// Terminals holds the results of the nodes nobody consumes.
	Terminals map[string]law.Result

	// Value is the single terminal's value, or a record keyed by terminal id
	// when there are several. Failed terminals contribute null.
	Value value.Value

	// Success is true when every terminal succeeded.
	Success  bool
	Duration time.Duration
}

// TerminalIDs returns the terminal ids in declaration order.
func (r *GraphResult) TerminalIDs(g *Graph) []string {
	var out []string
	for _, id := range g.Terminals() {
		if _, ok := r.Terminals[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
