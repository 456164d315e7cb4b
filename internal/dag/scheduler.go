package dag

import (
	"sort"
)

// ReadyNodes returns the deterministically ordered ids of nodes eligible to run.
//
// Policy:
//   - A node is ready iff it is PENDING and every operand is terminal.
//   - A law node additionally needs every operand COMPLETED. Operator nodes
//     run over failed operands so the composition can decide.
//   - The list is sorted by (depth asc, declaration index asc).
//
// This function is pure: it does not mutate graph or state.
func ReadyNodes(g *Graph, state ExecutionState) []string {
	if g == nil {
		return nil
	}

	var ready []int
	for idx, node := range g.nodes {
		if st, ok := state[node.ID]; !ok || st != NodePending {
			continue
		}
		depsOK := true
		for _, p := range g.incoming[idx] {
			pst, ok := state[g.nodes[p].ID]
			if !ok || !IsTerminal(pst) || (node.Kind == KindLaw && pst != NodeCompleted) {
				depsOK = false
				break
			}
		}
		if depsOK {
			ready = append(ready, idx)
		}
	}

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if g.depth[a] != g.depth[b] {
			return g.depth[a] < g.depth[b]
		}
		return a < b
	})
	return g.names(ready)
}
