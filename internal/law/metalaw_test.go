package law

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

func constLaw(name string, v any) *Law {
	return MustNew(Definition{
		Name:    name,
		Inputs:  []string{"x"},
		Enforce: Unary(func(value.Value) (value.Value, error) { return value.MustFromAny(v), nil }),
	})
}

func failingLaw(name string) *Law {
	return MustNew(Definition{
		Name:    name,
		Inputs:  []string{"x"},
		Enforce: Unary(func(value.Value) (value.Value, error) { return value.Value{}, errors.New("nope") }),
	})
}

func TestSequenceThreadsOutputs(t *testing.T) {
	m := MustNewMeta(MetaDefinition{
		Name:        "pipeline",
		Composition: Sequence,
		Laws: []Rule{
			intLaw("f", func(x int64) int64 { return x + 5 }),
			intLaw("g", func(x int64) int64 { return x * 2 }),
			intLaw("h", func(x int64) int64 { return x - 3 }),
		},
	})
	res := m.Execute([]value.Value{value.Int(10)}, nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(res.Value, value.Int(27)))
	assert.Len(t, res.LawResults, 3)
	assert.True(t, value.Equal(res.LawResults["g"].Value, value.Int(30)))
}

func TestSequenceAbortsOnFailure(t *testing.T) {
	reached := false
	last := MustNew(Definition{Name: "last", Inputs: []string{"x"}, Enforce: Unary(func(x value.Value) (value.Value, error) {
		reached = true
		return x, nil
	})})
	m := MustNewMeta(MetaDefinition{
		Name:        "pipeline",
		Composition: Sequence,
		Laws:        []Rule{intLaw("f", func(x int64) int64 { return x }), failingLaw("broken"), last},
	})
	res := m.Execute([]value.Value{value.Int(1)}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "broken")
	assert.False(t, reached)
	_, ran := res.LawResults["last"]
	assert.False(t, ran)
}

func TestImplicationVacuousTruth(t *testing.T) {
	consequentRan := false
	antecedent := MustNew(Definition{
		Name:   "negative",
		Inputs: []string{"x"},
		Precondition: func(args []value.Value) bool {
			n, _ := args[0].AsInt()
			return n < 0
		},
		Enforce: Unary(func(x value.Value) (value.Value, error) { return x, nil }),
	})
	consequent := MustNew(Definition{Name: "alarm", Inputs: []string{"x"}, Enforce: Unary(func(x value.Value) (value.Value, error) {
		consequentRan = true
		return value.String("alarm"), nil
	})})
	m := MustNewMeta(MetaDefinition{Name: "implies", Composition: Implication, Laws: []Rule{antecedent, consequent}})

	res := m.Execute([]value.Value{value.Int(5)}, nil)
	require.True(t, res.Success)
	assert.True(t, res.Vacuous)
	assert.True(t, res.Value.IsNull())
	assert.False(t, consequentRan)
	assert.False(t, res.LawResults["negative"].Success)
	assert.Equal(t, CheckUnmet, res.LawResults["negative"].PreconditionMet)

	res = m.Execute([]value.Value{value.Int(-2)}, nil)
	require.True(t, res.Success)
	assert.False(t, res.Vacuous)
	assert.True(t, consequentRan)
	assert.True(t, value.Equal(res.Value, value.String("alarm")))
}

func TestImplicationAntecedentFailure(t *testing.T) {
	m := MustNewMeta(MetaDefinition{Name: "implies", Composition: Implication, Laws: []Rule{failingLaw("a"), constLaw("b", 1)}})
	res := m.Execute([]value.Value{value.Int(1)}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Antecedent failed")
}

func TestParallelCollects(t *testing.T) {
	m := MustNewMeta(MetaDefinition{
		Name:               "powers",
		Composition:        Parallel,
		ConflictResolution: resolve.StrategyError,
		Laws: []Rule{
			intLaw("double", func(x int64) int64 { return 2 * x }),
			intLaw("square", func(x int64) int64 { return x * x }),
			intLaw("cube", func(x int64) int64 { return x * x * x }),
		},
	})
	res := m.Execute([]value.Value{value.Int(3)}, nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(res.Value, value.List(value.Int(6), value.Int(9), value.Int(27))))
}

func TestConjunctionVoting(t *testing.T) {
	m := MustNewMeta(MetaDefinition{
		Name:               "vote",
		Composition:        Conjunction,
		ConflictResolution: resolve.StrategyVoting,
		Laws:               []Rule{constLaw("one", "a"), constLaw("two", "a"), constLaw("three", "b")},
	})
	res := m.Execute([]value.Value{value.Null()}, nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(res.Value, value.String("a")))
}

func TestConjunctionStrictness(t *testing.T) {
	m := MustNewMeta(MetaDefinition{
		Name:        "all",
		Composition: Conjunction,
		Laws:        []Rule{constLaw("ok", 1), failingLaw("bad")},
	})
	res := m.Execute([]value.Value{value.Null()}, nil)
	assert.False(t, res.Success)
	assert.Len(t, res.LawResults, 2)
	assert.True(t, res.LawResults["ok"].Success)
}

func TestErrorStrategyReportsConflicts(t *testing.T) {
	m := MustNewMeta(MetaDefinition{
		Name:               "strict",
		Composition:        Conjunction,
		ConflictResolution: resolve.StrategyError,
		Laws:               []Rule{constLaw("x", 1), constLaw("y", 2)},
	})
	res := m.Execute([]value.Value{value.Null()}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "conflicts detected")
	assert.Contains(t, res.Error, "x")
	assert.Contains(t, res.Error, "y")
}

func TestErrorStrategyDistinguishesLargeInts(t *testing.T) {
	m := MustNewMeta(MetaDefinition{
		Name:               "strict",
		Composition:        Conjunction,
		ConflictResolution: resolve.StrategyError,
		Laws:               []Rule{constLaw("x", int64(9007199254740993)), constLaw("y", int64(9007199254740992))},
	})
	res := m.Execute([]value.Value{value.Null()}, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "conflicts detected")
}

func TestPriorityAcrossNestedMetaLaws(t *testing.T) {
	inner := MustNewMeta(MetaDefinition{
		Name:        "inner",
		Composition: Conjunction,
		Priority:    10,
		Laws:        []Rule{constLaw("deep", "inner-wins")},
	})
	outer := MustNewMeta(MetaDefinition{
		Name:               "outer",
		Composition:        Conjunction,
		ConflictResolution: resolve.StrategyPriority,
		Laws:               []Rule{constLaw("plain", "plain"), inner},
	})
	res := outer.Execute([]value.Value{value.Null()}, nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(res.Value, value.String("inner-wins")))
	assert.Contains(t, res.QualifiedResults, "inner/deep")
	assert.Contains(t, res.LawResults, "deep")
	assert.Contains(t, res.LawResults, "inner")
}

func TestDisjunction(t *testing.T) {
	firstOK := MustNewMeta(MetaDefinition{
		Name:        "any",
		Composition: Disjunction,
		Laws:        []Rule{failingLaw("a"), constLaw("b", "b"), constLaw("c", "c")},
	})
	res := firstOK.Execute([]value.Value{value.Null()}, nil)
	require.True(t, res.Success)
	assert.True(t, value.Equal(res.Value, value.String("c")), "last-wins scans every success")

	res = MustNewMeta(MetaDefinition{
		Name:               "any",
		Composition:        Disjunction,
		ConflictResolution: resolve.StrategyVoting,
		Laws:               []Rule{failingLaw("a"), constLaw("b", "b"), constLaw("c", "c")},
	}).Execute([]value.Value{value.Null()}, nil)
	require.True(t, res.Success)
	assert.True(t, value.Equal(res.Value, value.String("b")))

	res = MustNewMeta(MetaDefinition{
		Name:        "none",
		Composition: Disjunction,
		Laws:        []Rule{failingLaw("a"), failingLaw("b")},
	}).Execute([]value.Value{value.Null()}, nil)
	assert.False(t, res.Success)
}

func TestMergeResolution(t *testing.T) {
	m := MustNewMeta(MetaDefinition{
		Name:               "merged",
		Composition:        Conjunction,
		ConflictResolution: resolve.StrategyMerge,
		Laws: []Rule{
			constLaw("base", map[string]any{"limit": 10, "tier": "free"}),
			constLaw("override", map[string]any{"limit": 50}),
		},
	})
	res := m.Execute([]value.Value{value.Null()}, nil)
	require.True(t, res.Success)
	assert.True(t, value.Equal(res.Value, value.MustFromAny(map[string]any{"limit": 50, "tier": "free"})))
}

func TestCustomCompositionAndContext(t *testing.T) {
	sumAll := func(rules []Rule, args []value.Value, ctx Context) (value.Value, error) {
		var total int64
		for _, r := range rules {
			res := r.Apply(ctx, args...)
			if !res.Success {
				return value.Value{}, fmt.Errorf("%s: %s", r.Name(), res.Error)
			}
			n, _ := res.Value.AsInt()
			total += n
		}
		bonus, _ := ctx["bonus"].AsInt()
		return value.Int(total + bonus), nil
	}
	m := MustNewMeta(MetaDefinition{
		Name:          "sum",
		Composition:   Custom,
		CompositionFn: sumAll,
		Context:       Context{"bonus": value.Int(1), "region": value.String("eu")},
		Laws:          []Rule{constLaw("a", 2), constLaw("b", 3)},
	})

	res := m.Execute([]value.Value{value.Null()}, Context{"bonus": value.Int(100)})
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(res.Value, value.Int(105)))
	assert.True(t, value.Equal(res.Context["region"], value.String("eu")))
	assert.True(t, value.Equal(res.Context["bonus"], value.Int(100)))
	assert.Len(t, res.LawResults, 2)

	declared := m.Context()
	assert.True(t, value.Equal(declared["bonus"], value.Int(1)))

	panicky := MustNewMeta(MetaDefinition{
		Name:        "panicky",
		Composition: Custom,
		CompositionFn: func([]Rule, []value.Value, Context) (value.Value, error) {
			panic("bad composition")
		},
		Laws: []Rule{constLaw("a", 1)},
	})
	res = panicky.Execute(nil, nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "bad composition")
}

func TestFlatResultCollisionsWarn(t *testing.T) {
	left := MustNewMeta(MetaDefinition{Name: "left", Composition: Conjunction, Laws: []Rule{constLaw("check", "L")}})
	right := MustNewMeta(MetaDefinition{Name: "right", Composition: Conjunction, Laws: []Rule{constLaw("check", "R")}})
	outer := MustNewMeta(MetaDefinition{Name: "outer", Composition: Parallel, Laws: []Rule{left, right}})

	res := outer.Execute([]value.Value{value.Null()}, nil)
	require.True(t, res.Success)
	assert.True(t, value.Equal(res.LawResults["check"].Value, value.String("L")))
	assert.True(t, value.Equal(res.QualifiedResults["right/check"].Value, value.String("R")))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "check")
}

func TestMetaConstructionValidation(t *testing.T) {
	a, b := constLaw("a", 1), constLaw("b", 2)
	two := MustNew(Definition{Name: "two", Inputs: []string{"x", "y"}, Enforce: Binary(func(x, y value.Value) (value.Value, error) {
		return x, nil
	})})
	cases := map[string]MetaDefinition{
		"empty name":          {Composition: Conjunction, Laws: []Rule{a}},
		"no laws":             {Name: "m", Composition: Conjunction},
		"no composition":      {Name: "m", Laws: []Rule{a}},
		"custom without fn":   {Name: "m", Composition: Custom, Laws: []Rule{a}},
		"custom resolver":     {Name: "m", Composition: Conjunction, ConflictResolution: resolve.StrategyCustom, Laws: []Rule{a}},
		"implication arity":   {Name: "m", Composition: Implication, Laws: []Rule{a}},
		"duplicate names":     {Name: "m", Composition: Conjunction, Laws: []Rule{a, constLaw("a", 3)}},
		"sequence wide stage": {Name: "m", Composition: Sequence, Laws: []Rule{a, two}},
		"unknown resolution":  {Name: "m", Composition: Conjunction, ConflictResolution: "dice", Laws: []Rule{a}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewMeta(def)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}

	m, err := NewMeta(MetaDefinition{Name: "m", Composition: Sequence, Laws: []Rule{two, a, b}})
	require.NoError(t, err)
	assert.Equal(t, resolve.StrategyLastWins, m.Resolution())
	assert.Equal(t, 2, m.Arity())
}

func TestAddRemoveLaw(t *testing.T) {
	m := MustNewMeta(MetaDefinition{Name: "m", Composition: Conjunction, Laws: []Rule{constLaw("a", 1)}})

	assert.True(t, m.AddLaw(constLaw("b", 2)))
	assert.False(t, m.AddLaw(constLaw("b", 3)), "duplicate names are refused")
	assert.False(t, m.AddLaw(m), "a MetaLaw cannot contain itself")
	assert.Len(t, m.Laws(), 2)

	assert.True(t, m.RemoveLaw("a"))
	assert.False(t, m.RemoveLaw("missing"))
	assert.False(t, m.RemoveLaw("b"), "the last member stays")
	assert.Equal(t, "b", m.Laws()[0].Name())

	imp := MustNewMeta(MetaDefinition{Name: "imp", Composition: Implication, Laws: []Rule{constLaw("p", 1), constLaw("q", 2)}})
	assert.False(t, imp.AddLaw(constLaw("r", 3)))
	assert.False(t, imp.RemoveLaw("p"))
}

func TestConcurrentMembershipAndExecution(t *testing.T) {
	m := MustNewMeta(MetaDefinition{Name: "m", Composition: Parallel, Laws: []Rule{constLaw("base", 0)}})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			m.AddLaw(constLaw(fmt.Sprintf("l%d", i), i))
		}(i)
		go func() {
			defer wg.Done()
			res := m.Execute([]value.Value{value.Null()}, nil)
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()
	assert.Len(t, m.Laws(), 9)
}

func TestMetaCanApply(t *testing.T) {
	guarded := MustNew(Definition{
		Name:   "pos",
		Inputs: []string{"x"},
		Precondition: func(args []value.Value) bool {
			n, _ := args[0].AsInt()
			return n > 0
		},
		Enforce: Unary(func(x value.Value) (value.Value, error) { return x, nil }),
	})
	free := constLaw("free", 1)

	and := MustNewMeta(MetaDefinition{Name: "and", Composition: Conjunction, Laws: []Rule{guarded, free}})
	or := MustNewMeta(MetaDefinition{Name: "or", Composition: Disjunction, Laws: []Rule{guarded, free}})
	seq := MustNewMeta(MetaDefinition{Name: "seq", Composition: Sequence, Laws: []Rule{guarded, free}})

	assert.False(t, and.CanApply(value.Int(-1)))
	assert.True(t, or.CanApply(value.Int(-1)))
	assert.False(t, seq.CanApply(value.Int(-1)))
	assert.True(t, seq.CanApply(value.Int(1)))
}

func TestAggregateRejectsThreadedKinds(t *testing.T) {
	res := Aggregate(Sequence, resolve.Resolver{}, []Outcome{{Name: "a", Result: Result{Success: true}}})
	assert.False(t, res.Success)
	res = Aggregate(Conjunction, resolve.Resolver{}, nil)
	assert.False(t, res.Success)
}

func TestSettledRuleInCustomComposition(t *testing.T) {
	done := Settled("done", 2, Result{Success: true, Value: value.Int(7)})
	refused := Settled("refused", 0, Result{Error: msgPrecondition, PreconditionMet: CheckUnmet})

	assert.Equal(t, VariadicArity, done.Arity())
	assert.True(t, done.CanApply())
	assert.False(t, refused.CanApply())

	pick := func(rules []Rule, _ []value.Value, ctx Context) (value.Value, error) {
		for _, r := range rules {
			if res := r.Apply(ctx); res.Success {
				return res.Value, nil
			}
		}
		return value.Null(), errors.New("nothing settled")
	}
	m := MustNewMeta(MetaDefinition{Name: "pick", Composition: Custom, CompositionFn: pick, Laws: []Rule{refused, done}})
	res := m.Execute(nil, nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(value.Int(7), res.Value))
	assert.Contains(t, res.LawResults, "done")
}
