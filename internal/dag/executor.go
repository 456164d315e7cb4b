package dag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lawgraph/internal/law"
	"lawgraph/internal/trace"
	"lawgraph/internal/value"
)

// Operand is a finished predecessor as seen by the node consuming it.
type Operand struct {
	ID     string
	Node   Node
	State  NodeState
	Result law.Result
}

// Invocation is everything a NodeRunner needs to execute one node.
type Invocation struct {
	Node Node
	// Operands are the predecessors in edge-declaration order.
	Operands []Operand
	// Seed holds the external arguments of a source node.
	Seed []value.Value
}

// NodeRunner executes a single node.
//
// Law failures are reported in the returned Result. A non-nil error means
// the run itself cannot continue (for example, a cancelled context).
type NodeRunner interface {
	RunNode(ctx context.Context, inv Invocation) (law.Result, error)
}

// NodeObserver is notified once per node when it reaches a terminal state.
type NodeObserver interface {
	NodeFinished(n Node, state NodeState, res law.Result)
}

// ObserverFunc adapts a function to NodeObserver.
type ObserverFunc func(n Node, state NodeState, res law.Result)

func (f ObserverFunc) NodeFinished(n Node, state NodeState, res law.Result) { f(n, state, res) }

// Executor runs a Graph once.
//
// All state mutations are guarded by a single mutex; node execution happens
// outside of it.
type Executor struct {
	Graph  *Graph
	Runner NodeRunner

	// Seeds holds the arguments of source nodes, keyed by node id.
	Seeds    map[string][]value.Value
	Observer NodeObserver
	Trace    trace.Sink
	Logger   *slog.Logger

	mu      sync.Mutex
	state   ExecutionState
	phase   RunPhase
	results map[string]law.Result
}

// NewExecutor returns an executor with every node PENDING and the run in
// the ordered phase.
func NewExecutor(g *Graph, runner NodeRunner) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	if runner == nil {
		return nil, fmt.Errorf("nil runner")
	}
	e := &Executor{
		Graph:   g,
		Runner:  runner,
		state:   NewState(g),
		phase:   PhasePending,
		results: make(map[string]law.Result, g.Len()),
	}
	// The order was fixed when g was validated.
	if err := e.advance(PhaseOrdered); err != nil {
		return nil, err
	}
	return e, nil
}

// StateSnapshot returns a copy of the current execution state.
func (e *Executor) StateSnapshot() ExecutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Executor) snapshotLocked() ExecutionState {
	cp := make(ExecutionState, len(e.state))
	for k, v := range e.state {
		cp[k] = v
	}
	return cp
}

// Phase returns the current run phase.
func (e *Executor) Phase() RunPhase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

func (e *Executor) advance(next RunPhase) error {
	if err := advancePhase(e.phase, next); err != nil {
		return err
	}
	e.phase = next
	return nil
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}

func (e *Executor) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.advance(PhaseExecuting)
}

func (e *Executor) abort(err error) error {
	e.mu.Lock()
	_ = e.advance(PhaseFailed)
	e.mu.Unlock()
	return err
}

// RunSerial executes the graph one node at a time.
//
// The next node is always the first element of ReadyNodes, so the order is
// fully determined by the graph.
func (e *Executor) RunSerial(ctx context.Context) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	start := time.Now()
	order := make([]string, 0, e.Graph.Len())

	for {
		if err := ctx.Err(); err != nil {
			return nil, e.abort(fmt.Errorf("execution cancelled: %w", err))
		}

		e.mu.Lock()
		ready := ReadyNodes(e.Graph, e.state)
		if len(ready) == 0 {
			allTerminal := true
			for _, st := range e.state {
				if !IsTerminal(st) {
					allTerminal = false
					break
				}
			}
			e.mu.Unlock()
			if allTerminal {
				return e.finish(order, start)
			}
			return nil, e.abort(fmt.Errorf("no ready nodes but graph not finished"))
		}

		next := ready[0]
		inv := e.invocationLocked(next)
		if err := Transition(e.state, next, NodePending, NodeRunning); err != nil {
			e.mu.Unlock()
			return nil, e.abort(err)
		}
		e.mu.Unlock()

		res, err := e.Runner.RunNode(ctx, inv)
		if err != nil {
			return nil, e.abort(fmt.Errorf("executing %q: %w", next, err))
		}

		e.mu.Lock()
		order = append(order, next)
		err = e.completeLocked(next, res)
		e.mu.Unlock()
		if err != nil {
			return nil, e.abort(err)
		}
	}
}

// RunParallel executes the graph with up to concurrency nodes in flight.
//
// Nodes are dispatched one depth layer at a time. Completions within a
// layer are applied in declaration order once the whole layer has finished,
// so states, results and the trace match RunSerial.
func (e *Executor) RunParallel(ctx context.Context, concurrency int) (*GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0")
	}
	if err := e.begin(); err != nil {
		return nil, err
	}
	start := time.Now()

	layers := make([][]string, e.Graph.MaxDepth()+1)
	for i, n := range e.Graph.nodes {
		d := e.Graph.depth[i]
		layers[d] = append(layers[d], n.ID)
	}

	order := make([]string, 0, e.Graph.Len())
	for depth, ids := range layers {
		e.mu.Lock()
		ready := make(map[string]bool)
		for _, id := range ReadyNodes(e.Graph, e.state) {
			ready[id] = true
		}
		var batch []string
		var invs []Invocation
		for _, id := range ids {
			st := e.state[id]
			if IsTerminal(st) {
				continue
			}
			if st != NodePending {
				e.mu.Unlock()
				return nil, e.abort(fmt.Errorf("unexpected non-pending state for %q: %s", id, st))
			}
			if !ready[id] {
				e.mu.Unlock()
				return nil, e.abort(fmt.Errorf("node %q at depth %d is pending but its operands are not ready", id, depth))
			}
			invs = append(invs, e.invocationLocked(id))
			if err := Transition(e.state, id, NodePending, NodeRunning); err != nil {
				e.mu.Unlock()
				return nil, e.abort(err)
			}
			batch = append(batch, id)
		}
		e.mu.Unlock()

		results := make([]law.Result, len(batch))
		grp, gctx := errgroup.WithContext(ctx)
		grp.SetLimit(concurrency)
		for i := range batch {
			grp.Go(func() error {
				res, err := e.Runner.RunNode(gctx, invs[i])
				if err != nil {
					return fmt.Errorf("executing %q: %w", batch[i], err)
				}
				results[i] = res
				return nil
			})
		}
		if err := grp.Wait(); err != nil {
			return nil, e.abort(err)
		}
		if err := ctx.Err(); err != nil {
			return nil, e.abort(fmt.Errorf("execution cancelled: %w", err))
		}

		e.mu.Lock()
		for i, id := range batch {
			order = append(order, id)
			if err := e.completeLocked(id, results[i]); err != nil {
				e.mu.Unlock()
				return nil, e.abort(err)
			}
		}
		e.mu.Unlock()
	}
	return e.finish(order, start)
}

func (e *Executor) invocationLocked(id string) Invocation {
	idx := e.Graph.index[id]
	inv := Invocation{Node: e.Graph.nodes[idx]}
	for _, p := range e.Graph.incoming[idx] {
		pid := e.Graph.nodes[p].ID
		inv.Operands = append(inv.Operands, Operand{
			ID:     pid,
			Node:   e.Graph.nodes[p],
			State:  e.state[pid],
			Result: e.results[pid],
		})
	}
	if len(inv.Operands) == 0 {
		inv.Seed = append([]value.Value(nil), e.Seeds[id]...)
	}
	return inv
}

func (e *Executor) completeLocked(id string, res law.Result) error {
	node := e.Graph.nodes[e.Graph.index[id]]
	e.results[id] = res
	log := e.logger()

	if res.Success {
		if err := Transition(e.state, id, NodeRunning, NodeCompleted); err != nil {
			return err
		}
		ev := trace.Event{Kind: trace.EventNodeExecuted, NodeID: id, ValueKey: res.Value.CanonicalKey()}
		if res.Vacuous {
			ev = trace.Event{Kind: trace.EventOperatorVacuous, NodeID: id}
		}
		trace.SafeRecord(e.Trace, ev)
		log.Debug("node completed", "node", id, "vacuous", res.Vacuous, "value", res.Value.String())
		e.notify(node, NodeCompleted, res)
		return nil
	}

	skipped, err := FailAndPropagate(e.Graph, e.state, id)
	if err != nil {
		return err
	}
	trace.SafeRecord(e.Trace, trace.Event{Kind: trace.EventNodeFailed, NodeID: id, Reason: failureReason(res)})
	log.Debug("node failed", "node", id, "error", res.Error, "skipped", len(skipped))
	e.notify(node, NodeFailed, res)

	for _, s := range skipped {
		sr := law.Result{Error: fmt.Sprintf("Skipped: upstream node %q failed", id)}
		e.results[s] = sr
		trace.SafeRecord(e.Trace, trace.Event{Kind: trace.EventNodeSkipped, NodeID: s, Reason: trace.ReasonUpstreamFailed, CauseNodeID: id})
		log.Debug("node skipped", "node", s, "cause", id)
		e.notify(e.Graph.nodes[e.Graph.index[s]], NodeSkipped, sr)
	}
	return nil
}

func (e *Executor) notify(n Node, st NodeState, res law.Result) {
	if e.Observer != nil {
		e.Observer.NodeFinished(n, st, res)
	}
}

func failureReason(res law.Result) string {
	switch {
	case res.PreconditionMet == law.CheckUnmet:
		return trace.ReasonPreconditionUnmet
	case res.PostconditionMet == law.CheckUnmet:
		return trace.ReasonPostconditionUnmet
	default:
		return trace.ReasonExecutionFailed
	}
}

func (e *Executor) finish(order []string, start time.Time) (*GraphResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := &GraphResult{
		RunID:      uuid.NewString(),
		GraphHash:  e.Graph.Hash(),
		Order:      order,
		FinalState: e.snapshotLocked(),
		Results:    make(map[string]law.Result, len(e.results)),
		Terminals:  make(map[string]law.Result),
		Success:    true,
	}
	for id, r := range e.results {
		out.Results[id] = r
	}

	terminals := e.Graph.Terminals()
	fields := make(map[string]value.Value, len(terminals))
	for _, id := range terminals {
		r := e.results[id]
		out.Terminals[id] = r
		fields[id] = r.Value
		if !r.Success {
			out.Success = false
			fields[id] = value.Null()
		}
	}
	if len(terminals) == 1 {
		out.Value = fields[terminals[0]]
	} else {
		out.Value = value.Record(fields)
	}

	next := PhaseDone
	if !out.Success {
		next = PhaseFailed
	}
	if err := e.advance(next); err != nil {
		return nil, err
	}
	out.Phase = e.phase
	out.Duration = time.Since(start)
	return out, nil
}
