package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lawgraph/internal/dag"
	"lawgraph/internal/law"
	"lawgraph/internal/metrics"
	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

// nodeRunner maps graph nodes onto Law and composition calls.
type nodeRunner struct {
	tracer trace.Tracer
}

func (r *nodeRunner) RunNode(ctx context.Context, inv dag.Invocation) (law.Result, error) {
	if err := ctx.Err(); err != nil {
		return law.Result{}, err
	}
	_, span := r.tracer.Start(ctx, "lawgraph.node", trace.WithAttributes(
		attribute.String("lawgraph.node.id", inv.Node.ID),
		attribute.String("lawgraph.node.kind", string(inv.Node.Kind)),
	))
	defer span.End()

	var res law.Result
	if inv.Node.Kind == dag.KindLaw {
		res = inv.Node.Law.Execute(lawArgs(inv)...)
	} else {
		res = runOperator(inv)
	}

	span.SetAttributes(attribute.Bool("lawgraph.node.success", res.Success))
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	return res, nil
}

// lawArgs are the operand values in edge order, or the seed of a source node.
func lawArgs(inv dag.Invocation) []value.Value {
	if len(inv.Operands) == 0 {
		return inv.Seed
	}
	args := make([]value.Value, len(inv.Operands))
	for i, op := range inv.Operands {
		args[i] = op.Result.Value
	}
	return args
}

func operandPriority(n dag.Node) float64 {
	if n.Kind == dag.KindLaw && n.Law != nil {
		return n.Law.Priority()
	}
	return 0
}

func runOperator(inv dag.Invocation) law.Result {
	n := inv.Node
	switch n.Operator {
	case law.Sequence:
		return runSequence(inv)
	case law.Custom:
		return runCustom(inv)
	}

	outcomes := make([]law.Outcome, len(inv.Operands))
	for i, op := range inv.Operands {
		outcomes[i] = law.Outcome{Name: op.ID, Priority: operandPriority(op.Node), Result: op.Result}
	}
	return law.Aggregate(n.Operator, resolve.Resolver{Strategy: n.Resolution, Custom: n.Resolver}, outcomes)
}

// runSequence threads the first operand's value through the laws of the
// remaining operands.
func runSequence(inv dag.Invocation) law.Result {
	if len(inv.Operands) == 0 {
		return law.Result{Error: "sequence has no operands"}
	}
	head := inv.Operands[0]
	if !head.Result.Success {
		return law.Result{Error: fmt.Sprintf("Sequence aborted at %s: %s", head.ID, head.Result.Error)}
	}
	if len(inv.Operands) == 1 {
		return head.Result
	}

	stages := make([]law.Rule, 0, len(inv.Operands)-1)
	for _, op := range inv.Operands[1:] {
		if op.Node.Kind != dag.KindLaw || op.Node.Law == nil {
			return law.Result{Error: fmt.Sprintf("sequence stage %q is not a law", op.ID)}
		}
		stages = append(stages, op.Node.Law)
	}
	m, err := law.NewMeta(law.MetaDefinition{
		Name:        inv.Node.ID,
		Laws:        stages,
		Composition: law.Sequence,
	})
	if err != nil {
		return law.Result{Error: err.Error()}
	}
	return m.Execute([]value.Value{head.Result.Value}, nil).Result
}

// runCustom hands the operands to the node's composition function as
// settled rules, together with their values (null for failed operands).
func runCustom(inv dag.Invocation) law.Result {
	rules := make([]law.Rule, len(inv.Operands))
	args := make([]value.Value, len(inv.Operands))
	for i, op := range inv.Operands {
		rules[i] = law.Settled(op.ID, operandPriority(op.Node), op.Result)
		if op.Result.Success {
			args[i] = op.Result.Value
		}
	}
	m, err := law.NewMeta(law.MetaDefinition{
		Name:               inv.Node.ID,
		Laws:               rules,
		Composition:        law.Custom,
		CompositionFn:      inv.Node.Compose,
		ConflictResolution: inv.Node.Resolution,
		Resolver:           inv.Node.Resolver,
	})
	if err != nil {
		return law.Result{Error: err.Error()}
	}
	return m.Execute(args, nil).Result
}

// observer feeds node outcomes into the metrics collector.
type observer struct {
	metrics *metrics.Collector
}

func (o observer) NodeFinished(n dag.Node, st dag.NodeState, res law.Result) {
	outcome := "completed"
	switch {
	case st == dag.NodeSkipped:
		outcome = "skipped"
	case st == dag.NodeFailed:
		outcome = "failed"
	case res.Vacuous:
		outcome = "vacuous"
	}
	o.metrics.ObserveNode(string(n.Kind), outcome)
}
