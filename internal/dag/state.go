package dag

import "fmt"

// NodeState is the runtime state of one node within a run.
type NodeState string

const (
	NodePending   NodeState = "PENDING"
	NodeRunning   NodeState = "RUNNING"
	NodeCompleted NodeState = "COMPLETED"
	NodeFailed    NodeState = "FAILED"
	NodeSkipped   NodeState = "SKIPPED"
)

// ExecutionState maps node id to its current NodeState.
//
// It is a plain map so the scheduler stays a pure function of graph and state.
type ExecutionState map[string]NodeState

// RunPhase is the lifecycle of a whole run:
//
//	pending -> ordered -> executing -> done | failed
type RunPhase string

const (
	PhasePending   RunPhase = "pending"
	PhaseOrdered   RunPhase = "ordered"
	PhaseExecuting RunPhase = "executing"
	PhaseDone      RunPhase = "done"
	PhaseFailed    RunPhase = "failed"
)

func advancePhase(cur, next RunPhase) error {
	ok := false
	switch cur {
	case PhasePending:
		ok = next == PhaseOrdered || next == PhaseFailed
	case PhaseOrdered:
		ok = next == PhaseExecuting || next == PhaseFailed
	case PhaseExecuting:
		ok = next == PhaseDone || next == PhaseFailed
	}
	if !ok {
		return fmt.Errorf("disallowed run phase transition: %s -> %s", cur, next)
	}
	return nil
}
