// Package engine is the entry point for running law graphs.
//
// ExecuteGraph detects conflicts first and refuses to start when any of them
// reaches the blocking severity. Otherwise it builds the graph and executes
// it in dependency order, threading each node's output to its consumers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lawgraph/internal/conflict"
	"lawgraph/internal/dag"
	"lawgraph/internal/metrics"
	lawtrace "lawgraph/internal/trace"
	"lawgraph/internal/value"
)

var (
	ErrBlocked     = errors.New("graph execution blocked by conflicts")
	ErrInvalidSeed = errors.New("invalid seed")
)

// BlockedError carries the conflicts that prevented a run.
type BlockedError struct {
	Conflicts []conflict.Conflict
}

func (e *BlockedError) Error() string {
	descs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		descs[i] = c.Description
	}
	return fmt.Sprintf("%s: %s", ErrBlocked, strings.Join(descs, "; "))
}

// Unwrap exposes ErrBlocked, and dag.ErrCycleFound when a cycle is among
// the conflicts.
func (e *BlockedError) Unwrap() []error {
	errs := []error{ErrBlocked}
	if len(conflict.Cycles(e.Conflicts)) > 0 {
		errs = append(errs, dag.ErrCycleFound)
	}
	return errs
}

// Cycle returns the first reported cycle as [first ... first], or nil.
func (e *BlockedError) Cycle() []string {
	cycles := conflict.Cycles(e.Conflicts)
	if len(cycles) == 0 {
		return nil
	}
	return cycles[0].Nodes
}

// Check runs conflict detection and returns every conflict together with
// those that would block ExecuteGraph under the same options.
func Check(nodes []dag.Node, edges []dag.Edge, opts ...Option) (all, blocking []conflict.Conflict) {
	o := apply(opts)
	all = conflict.Detect(nodes, edges)
	for _, c := range all {
		o.metrics.ObserveConflict(string(c.Type), c.Severity.String())
	}
	return all, conflict.Blocking(all, o.blocking)
}

// ExecuteGraph runs the graph described by nodes and edges.
//
// seeds holds the arguments of source nodes, keyed by node id. Law failures
// are reported in the returned GraphResult; an error means the run could not
// start or could not finish (blocked, malformed graph, bad seed, cancelled
// context).
func ExecuteGraph(ctx context.Context, nodes []dag.Node, edges []dag.Edge, seeds map[string][]value.Value, opts ...Option) (*dag.GraphResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := apply(opts)
	log := o.logger

	ctx, span := o.tracer.Start(ctx, "lawgraph.ExecuteGraph", trace.WithAttributes(
		attribute.Int("lawgraph.nodes", len(nodes)),
		attribute.Int("lawgraph.edges", len(edges)),
		attribute.Int("lawgraph.parallelism", o.parallelism),
	))
	defer span.End()

	fail := func(outcome string, err error) (*dag.GraphResult, error) {
		o.metrics.ObserveRun(outcome, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	all, blocking := Check(nodes, edges, opts...)
	if len(blocking) > 0 {
		ids := make([]string, len(blocking))
		for i, c := range blocking {
			ids[i] = c.ID
		}
		lawtrace.SafeRecord(o.sink, lawtrace.Event{
			Kind:      lawtrace.EventRunBlocked,
			Reason:    lawtrace.ReasonBlockingConflicts,
			Conflicts: ids,
		})
		log.Warn("graph execution blocked", "conflicts", len(blocking), "threshold", o.blocking.String())
		return fail(metrics.RunBlocked, &BlockedError{Conflicts: blocking})
	}
	for _, c := range all {
		log.Info("conflict below blocking threshold", "type", c.Type, "severity", c.Severity.String(), "nodes", c.Nodes, "description", c.Description)
	}

	g, err := dag.New(nodes, edges)
	if err != nil {
		return fail(metrics.RunError, fmt.Errorf("build graph: %w", err))
	}
	if err := checkSeeds(g, seeds); err != nil {
		return fail(metrics.RunError, err)
	}
	span.SetAttributes(attribute.String("lawgraph.graph_hash", g.Hash().String()))

	ex, err := dag.NewExecutor(g, &nodeRunner{tracer: o.tracer})
	if err != nil {
		return fail(metrics.RunError, err)
	}
	ex.Seeds = seeds
	ex.Trace = o.sink
	ex.Logger = log
	if o.metrics != nil {
		ex.Observer = observer{metrics: o.metrics}
	}

	log.Debug("graph run starting", "graph_hash", g.Hash().String(), "nodes", g.Len(), "parallelism", o.parallelism)
	var res *dag.GraphResult
	if o.parallelism > 1 {
		res, err = ex.RunParallel(ctx, o.parallelism)
	} else {
		res, err = ex.RunSerial(ctx)
	}
	if err != nil {
		return fail(metrics.RunError, err)
	}

	outcome := metrics.RunSucceeded
	if !res.Success {
		outcome = metrics.RunFailed
		span.SetStatus(codes.Error, "terminal node failed")
	}
	o.metrics.ObserveRun(outcome, res.Duration)
	span.SetAttributes(attribute.String("lawgraph.run_id", res.RunID), attribute.Bool("lawgraph.success", res.Success))
	log.Info("graph run finished", "run_id", res.RunID, "success", res.Success, "duration", res.Duration)
	return res, nil
}

func checkSeeds(g *dag.Graph, seeds map[string][]value.Value) error {
	ids := make([]string, 0, len(seeds))
	for id := range seeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := g.Node(id); !ok {
			return fmt.Errorf("%w: node %q does not exist", ErrInvalidSeed, id)
		}
		if preds := g.Predecessors(id); len(preds) > 0 {
			return fmt.Errorf("%w: node %q has operands %v and takes no seed", ErrInvalidSeed, id, preds)
		}
	}
	return nil
}
