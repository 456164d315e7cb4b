package law

import (
	"fmt"
	"strings"

	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

// Composition names an algebraic operator over rules.
type Composition string

const (
	Conjunction Composition = "conjunction"
	Disjunction Composition = "disjunction"
	Implication Composition = "implication"
	Sequence    Composition = "sequence"
	Parallel    Composition = "parallel"
	Custom      Composition = "custom"
)

var compositions = []Composition{Conjunction, Disjunction, Implication, Sequence, Parallel, Custom}

// ParseComposition parses a composition name.
func ParseComposition(s string) (Composition, error) {
	want := Composition(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range compositions {
		if c == want {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown composition %q", s)
}

// Valid reports whether c names a known composition.
func (c Composition) Valid() bool {
	for _, k := range compositions {
		if k == c {
			return true
		}
	}
	return false
}

// Context is the open key/value bag threaded through MetaLaw execution.
type Context map[string]value.Value

// Merge returns a copy of c overlaid with over.
func (c Context) Merge(over Context) Context {
	out := make(Context, len(c)+len(over))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// Rule is a Law or a MetaLaw. The set of implementations is closed.
type Rule interface {
	Name() string
	Priority() float64
	// Arity is the number of arguments the rule expects, or VariadicArity.
	Arity() int
	CanApply(args ...value.Value) bool
	Apply(ctx Context, args ...value.Value) Result

	isRule()
}

// CompositionFunc implements a custom composition. It receives the member
// rules in declaration order, the call arguments and the effective context.
type CompositionFunc func(rules []Rule, args []value.Value, ctx Context) (value.Value, error)

// Aggregate combines already-computed member outcomes under kind.
//
// Outcomes must be in declaration order. Sequence and custom compositions
// need to invoke their members and cannot be aggregated after the fact.
// For implication, a single outcome is enough when the antecedent did not
// succeed.
func Aggregate(kind Composition, r resolve.Resolver, outcomes []Outcome) Result {
	if len(outcomes) == 0 {
		return failed(fmt.Sprintf("%s has no operands", kind))
	}
	switch kind {
	case Conjunction:
		return conjoin(r, outcomes)
	case Disjunction:
		return disjoin(r, outcomes)
	case Parallel:
		return collect(outcomes)
	case Implication:
		return imply(outcomes)
	default:
		return failed(fmt.Sprintf("%s composition cannot aggregate precomputed results", kind))
	}
}

func conjoin(r resolve.Resolver, outcomes []Outcome) Result {
	cands := make([]resolve.Candidate, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Result.Success {
			return failed(fmt.Sprintf("Conjunction failed: %s: %s", o.Name, o.Result.Error))
		}
		cands = append(cands, resolve.Candidate{Name: o.Name, Priority: o.Priority, Value: o.Result.Value})
	}
	v, err := r.Resolve(cands)
	if err != nil {
		return failed("Conflict resolution failed: " + err.Error())
	}
	return Result{Success: true, Value: v, PreconditionMet: CheckMet, PostconditionMet: CheckMet}
}

// disjoin picks the first successful outcome. Under last-wins and first-wins
// the resolver scans every successful outcome instead.
func disjoin(r resolve.Resolver, outcomes []Outcome) Result {
	var cands []resolve.Candidate
	var errs []string
	for _, o := range outcomes {
		if o.Result.Success {
			cands = append(cands, resolve.Candidate{Name: o.Name, Priority: o.Priority, Value: o.Result.Value})
			continue
		}
		errs = append(errs, o.Name+": "+o.Result.Error)
	}
	if len(cands) == 0 {
		return failed("Disjunction failed: no law succeeded (" + strings.Join(errs, "; ") + ")")
	}
	v := cands[0].Value
	switch r.Strategy {
	case "", resolve.StrategyLastWins, resolve.StrategyFirstWins:
		resolved, err := r.Resolve(cands)
		if err != nil {
			return failed("Conflict resolution failed: " + err.Error())
		}
		v = resolved
	}
	return Result{Success: true, Value: v, PreconditionMet: CheckMet, PostconditionMet: CheckMet}
}

func collect(outcomes []Outcome) Result {
	items := make([]value.Value, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Result.Success {
			return failed(fmt.Sprintf("Parallel failed: %s: %s", o.Name, o.Result.Error))
		}
		items = append(items, o.Result.Value)
	}
	return Result{Success: true, Value: value.List(items...), PreconditionMet: CheckMet, PostconditionMet: CheckMet}
}

func imply(outcomes []Outcome) Result {
	ante := outcomes[0]
	if ante.Result.PreconditionMet == CheckUnmet {
		return Result{Success: true, Vacuous: true, PreconditionMet: CheckUnmet}
	}
	if !ante.Result.Success {
		return failed(fmt.Sprintf("Antecedent failed: %s: %s", ante.Name, ante.Result.Error))
	}
	if len(outcomes) < 2 {
		return failed("implication has no consequent")
	}
	cons := outcomes[1].Result
	return Result{
		Success:          cons.Success,
		Value:            cons.Value,
		Error:            cons.Error,
		PreconditionMet:  CheckMet,
		PostconditionMet: cons.PostconditionMet,
	}
}
