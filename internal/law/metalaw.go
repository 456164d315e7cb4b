package law

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

// MetaDefinition is the construction record of a MetaLaw.
type MetaDefinition struct {
	Name        string
	Laws        []Rule
	Composition Composition
	// ConflictResolution defaults to last-wins.
	ConflictResolution resolve.Strategy
	Priority           float64
	Context            Context

	// CompositionFn is required for Custom compositions.
	CompositionFn CompositionFunc
	// Resolver is required for the custom resolution strategy.
	Resolver resolve.Func
}

// MetaLaw composes rules under one operator and one resolution strategy.
//
// Membership may change through AddLaw and RemoveLaw; both are safe to call
// while Execute runs, and every execution works on a snapshot of the members.
type MetaLaw struct {
	name        string
	composition Composition
	resolver    resolve.Resolver
	priority    float64
	context     Context
	compose     CompositionFunc

	mu   sync.RWMutex
	laws []Rule
}

// NewMeta validates def and returns the MetaLaw it describes.
func NewMeta(def MetaDefinition) (*MetaLaw, error) {
	if def.ConflictResolution == "" {
		def.ConflictResolution = resolve.StrategyLastWins
	}
	var errs []error
	if strings.TrimSpace(def.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(def.Laws) == 0 {
		errs = append(errs, errors.New("at least one law is required"))
	}
	switch {
	case def.Composition == "":
		errs = append(errs, errors.New("composition is required"))
	case !def.Composition.Valid():
		errs = append(errs, fmt.Errorf("unknown composition %q", def.Composition))
	case def.Composition == Custom && def.CompositionFn == nil:
		errs = append(errs, errors.New("custom composition requires a composition function"))
	}
	switch {
	case !def.ConflictResolution.Valid():
		errs = append(errs, fmt.Errorf("unknown conflict resolution %q", def.ConflictResolution))
	case def.ConflictResolution == resolve.StrategyCustom && def.Resolver == nil:
		errs = append(errs, errors.New("custom conflict resolution requires a resolver"))
	}
	if def.Composition == Implication && len(def.Laws) != 2 {
		errs = append(errs, fmt.Errorf("implication takes exactly 2 laws, got %d", len(def.Laws)))
	}
	seen := make(map[string]bool, len(def.Laws))
	for i, r := range def.Laws {
		if r == nil {
			errs = append(errs, fmt.Errorf("laws[%d] is nil", i))
			continue
		}
		if seen[r.Name()] {
			errs = append(errs, fmt.Errorf("duplicate law %q", r.Name()))
		}
		seen[r.Name()] = true
		if err := memberFits(def.Composition, i, r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, &ValidationError{Name: def.Name, Err: errors.Join(errs...)}
	}

	return &MetaLaw{
		name:        def.Name,
		composition: def.Composition,
		resolver:    resolve.Resolver{Strategy: def.ConflictResolution, Custom: def.Resolver},
		priority:    def.Priority,
		context:     Context(nil).Merge(def.Context),
		compose:     def.CompositionFn,
		laws:        append([]Rule(nil), def.Laws...),
	}, nil
}

// MustNewMeta is NewMeta for definitions known to be valid.
func MustNewMeta(def MetaDefinition) *MetaLaw {
	m, err := NewMeta(def)
	if err != nil {
		panic(err)
	}
	return m
}

// memberFits checks that the rule at position i can take part in kind.
// Sequence members after the first receive exactly one value.
func memberFits(kind Composition, i int, r Rule) error {
	if kind != Sequence || i == 0 {
		return nil
	}
	if a := r.Arity(); a != 1 && a != VariadicArity {
		return fmt.Errorf("sequence member %q takes %d inputs, want 1", r.Name(), a)
	}
	return nil
}

func (m *MetaLaw) Name() string                 { return m.name }
func (m *MetaLaw) Priority() float64            { return m.priority }
func (m *MetaLaw) Composition() Composition     { return m.composition }
func (m *MetaLaw) Resolution() resolve.Strategy { return m.resolver.Strategy }

// Context returns a copy of the declared default context.
func (m *MetaLaw) Context() Context { return Context(nil).Merge(m.context) }

// Laws returns the current members in declaration order.
func (m *MetaLaw) Laws() []Rule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Rule(nil), m.laws...)
}

// Arity is the first member's arity; custom compositions accept anything.
func (m *MetaLaw) Arity() int {
	if m.composition == Custom {
		return VariadicArity
	}
	laws := m.Laws()
	if len(laws) == 0 {
		return VariadicArity
	}
	return laws[0].Arity()
}

// AddLaw appends r. It reports false when r is nil, its name is taken, or
// it cannot join this composition.
func (m *MetaLaw) AddLaw(r Rule) bool {
	if r == nil || m.composition == Implication || contains(r, m) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.laws {
		if existing.Name() == r.Name() {
			return false
		}
	}
	if memberFits(m.composition, len(m.laws), r) != nil {
		return false
	}
	m.laws = append(m.laws, r)
	return true
}

// RemoveLaw removes the member called name. The last member of a MetaLaw
// and the members of an implication cannot be removed.
func (m *MetaLaw) RemoveLaw(name string) bool {
	if m.composition == Implication {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.laws) <= 1 {
		return false
	}
	for i, r := range m.laws {
		if r.Name() != name {
			continue
		}
		next := make([]Rule, 0, len(m.laws)-1)
		next = append(next, m.laws[:i]...)
		next = append(next, m.laws[i+1:]...)
		m.laws = next
		return true
	}
	return false
}

// contains reports whether target is r or is nested anywhere inside r.
func contains(r Rule, target *MetaLaw) bool {
	sub, ok := r.(*MetaLaw)
	if !ok {
		return false
	}
	if sub == target {
		return true
	}
	for _, child := range sub.Laws() {
		if contains(child, target) {
			return true
		}
	}
	return false
}

// CanApply reports whether the composition could apply to args, judged by
// member preconditions only.
func (m *MetaLaw) CanApply(args ...value.Value) bool {
	laws := m.Laws()
	switch m.composition {
	case Conjunction, Parallel:
		for _, r := range laws {
			if !r.CanApply(args...) {
				return false
			}
		}
		return true
	case Disjunction:
		for _, r := range laws {
			if r.CanApply(args...) {
				return true
			}
		}
		return false
	case Sequence, Implication:
		return laws[0].CanApply(args...)
	default:
		return true
	}
}

// MetaResult is the outcome of MetaLaw.Execute.
type MetaResult struct {
	Result
	// Context is the declared context overlaid with the call's overrides.
	Context Context
	// LawResults is keyed by the name of each member, including the members
	// of nested MetaLaws. On a name collision the first result is kept and a
	// warning is added.
	LawResults map[string]Result
	// QualifiedResults is keyed by slash-separated paths (outer/inner/leaf)
	// and never collides.
	QualifiedResults map[string]Result
	Warnings         []string
}

// Apply runs the composition and returns its overall Result.
func (m *MetaLaw) Apply(ctx Context, args ...value.Value) Result {
	return m.Execute(args, ctx).Result
}

func (m *MetaLaw) isRule() {}

// Execute runs the composition against args with ctx overriding the
// declared context.
func (m *MetaLaw) Execute(args []value.Value, ctx Context) *MetaResult {
	run := m.run(args, m.context.Merge(ctx))
	out := &MetaResult{
		Result:           run.result,
		Context:          run.ctx,
		LawResults:       make(map[string]Result, len(run.entries)),
		QualifiedResults: make(map[string]Result, len(run.entries)),
	}
	owner := make(map[string]string, len(run.entries))
	for _, e := range run.entries {
		path := strings.Join(e.path, "/")
		out.QualifiedResults[path] = e.result
		leaf := e.path[len(e.path)-1]
		if prev, taken := owner[leaf]; taken {
			out.Warnings = append(out.Warnings, fmt.Sprintf("law result %q from %s shadowed by %s", leaf, path, prev))
			continue
		}
		owner[leaf] = path
		out.LawResults[leaf] = e.result
	}
	return out
}

type entry struct {
	path   []string
	result Result
}

type metaRun struct {
	result  Result
	ctx     Context
	entries []entry
}

// recorder collects member results in invocation order.
type recorder struct {
	mu      sync.Mutex
	entries []entry
}

func (rec *recorder) add(r Rule, res Result, nested []entry) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.entries = append(rec.entries, entry{path: []string{r.Name()}, result: res})
	for _, e := range nested {
		rec.entries = append(rec.entries, entry{
			path:   append([]string{r.Name()}, e.path...),
			result: e.result,
		})
	}
}

// invoke applies r and records the result together with any nested results.
func (rec *recorder) invoke(r Rule, ctx Context, args []value.Value) Result {
	if sub, ok := r.(*MetaLaw); ok {
		run := sub.run(args, sub.context.Merge(ctx))
		rec.add(r, run.result, run.entries)
		return run.result
	}
	res := r.Apply(ctx, args...)
	rec.add(r, res, nil)
	return res
}

func (m *MetaLaw) run(args []value.Value, ctx Context) metaRun {
	start := time.Now()
	laws := m.Laws()
	rec := &recorder{}
	pre := checkOf(m.CanApply(args...))

	var res Result
	switch m.composition {
	case Sequence:
		res = m.sequence(rec, laws, args, ctx)
	case Implication:
		res = m.implication(rec, laws, args, ctx)
	case Custom:
		res = m.custom(rec, laws, args, ctx)
	default:
		outcomes := make([]Outcome, len(laws))
		for i, r := range laws {
			outcomes[i] = Outcome{Name: r.Name(), Priority: r.Priority(), Result: rec.invoke(r, ctx, args)}
		}
		res = Aggregate(m.composition, m.resolver, outcomes)
	}
	if !res.Vacuous {
		res.PreconditionMet = pre
	}
	res.Duration = time.Since(start)
	return metaRun{result: res, ctx: ctx, entries: rec.entries}
}

func (m *MetaLaw) sequence(rec *recorder, laws []Rule, args []value.Value, ctx Context) Result {
	cur := args
	var last Result
	for _, r := range laws {
		last = rec.invoke(r, ctx, cur)
		if !last.Success {
			return Result{
				Error:            fmt.Sprintf("Sequence aborted at %s: %s", r.Name(), last.Error),
				PostconditionMet: last.PostconditionMet,
			}
		}
		cur = []value.Value{last.Value}
	}
	return Result{Success: true, Value: last.Value, PostconditionMet: CheckMet}
}

// implication executes the consequent only when the antecedent succeeded.
func (m *MetaLaw) implication(rec *recorder, laws []Rule, args []value.Value, ctx Context) Result {
	ante := Outcome{Name: laws[0].Name(), Priority: laws[0].Priority(), Result: rec.invoke(laws[0], ctx, args)}
	if !ante.Result.Success {
		return Aggregate(Implication, m.resolver, []Outcome{ante})
	}
	cons := Outcome{Name: laws[1].Name(), Priority: laws[1].Priority(), Result: rec.invoke(laws[1], ctx, args)}
	return Aggregate(Implication, m.resolver, []Outcome{ante, cons})
}

func (m *MetaLaw) custom(rec *recorder, laws []Rule, args []value.Value, ctx Context) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(fmt.Sprintf("Composition failed: panic: %v", r))
		}
	}()
	wrapped := make([]Rule, len(laws))
	for i, r := range laws {
		wrapped[i] = &recordingRule{Rule: r, rec: rec}
	}
	v, err := m.compose(wrapped, append([]value.Value(nil), args...), Context(nil).Merge(ctx))
	if err != nil {
		return failed("Composition failed: " + err.Error())
	}
	return Result{Success: true, Value: v, PostconditionMet: CheckMet}
}

// recordingRule lets a custom composition invoke members while their
// results are still reported.
type recordingRule struct {
	Rule
	rec *recorder
}

func (r *recordingRule) Apply(ctx Context, args ...value.Value) Result {
	return r.rec.invoke(r.Rule, ctx, args)
}
