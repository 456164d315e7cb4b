package dag

import (
	"container/heap"
	"fmt"
)

// IsTerminal reports whether the state is final.
func IsTerminal(s NodeState) bool {
	switch s {
	case NodeCompleted, NodeFailed, NodeSkipped:
		return true
	default:
		return false
	}
}

// NewState returns a state with every node of g PENDING.
func NewState(g *Graph) ExecutionState {
	state := make(ExecutionState, len(g.nodes))
	for _, n := range g.nodes {
		state[n.ID] = NodePending
	}
	return state
}

// Transition performs a validated transition for a single node.
//
// The caller supplies the expected prior state (from) to make races observable.
// The state map is mutated if and only if the transition is valid.
func Transition(state ExecutionState, id string, from, to NodeState) error {
	cur, ok := state[id]
	if !ok {
		return fmt.Errorf("unknown node in state: %q", id)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", id, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", id, from, to)
	}
	state[id] = to
	return nil
}

func isAllowedTransition(from, to NodeState) bool {
	switch from {
	case NodePending:
		return to == NodeRunning || to == NodeSkipped
	case NodeRunning:
		return to == NodeCompleted || to == NodeFailed
	default:
		return false
	}
}

// FailAndPropagate moves id from RUNNING to FAILED and marks dependent law
// nodes SKIPPED, transitively. It returns the skipped ids in canonical order.
//
// Propagation stops at operator nodes: they stay PENDING and later run with
// the failed operand, since a disjunction or an implication may still
// succeed. Nodes reachable only through an operator are left alone.
//
// A downstream node already RUNNING is an invariant violation.
func FailAndPropagate(g *Graph, state ExecutionState, id string) ([]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	start, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("unknown node: %q", id)
	}
	cur, ok := state[id]
	if !ok {
		return nil, fmt.Errorf("unknown node in state: %q", id)
	}
	if cur != NodeRunning && cur != NodeFailed {
		return nil, fmt.Errorf("cannot fail %q from state %s", id, cur)
	}
	state[id] = NodeFailed

	visited := make([]bool, len(g.nodes))
	visited[start] = true

	hq := &intMinHeap{}
	heap.Init(hq)
	for _, d := range g.outgoing[start] {
		heap.Push(hq, d)
	}

	var skipped []string
	for hq.Len() > 0 {
		u := heap.Pop(hq).(int)
		if visited[u] {
			continue
		}
		visited[u] = true

		n := g.nodes[u]
		if n.Kind == KindOperator {
			continue
		}
		st, ok := state[n.ID]
		if !ok {
			return nil, fmt.Errorf("missing state for %q", n.ID)
		}
		switch st {
		case NodePending:
			state[n.ID] = NodeSkipped
			skipped = append(skipped, n.ID)
		case NodeRunning:
			return nil, fmt.Errorf("invariant violation: downstream node %q is RUNNING during failure propagation", n.ID)
		}

		for _, v := range g.outgoing[u] {
			if !visited[v] {
				heap.Push(hq, v)
			}
		}
	}
	return skipped, nil
}
