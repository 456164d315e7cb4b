package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawgraph/internal/law"
	"lawgraph/internal/value"
)

func compileLaw(t *testing.T, e *Engine, name string, inputs []string, src string) *law.Law {
	t.Helper()
	enf, err := e.CompileLaw(inputs, src)
	require.NoError(t, err)
	return law.MustNew(law.Definition{Name: name, Inputs: inputs, Enforce: enf})
}

func TestCompileLaw_Arithmetic(t *testing.T) {
	e := New()
	f := compileLaw(t, e, "f", []string{"x"}, "x + 5")
	g := compileLaw(t, e, "g", []string{"x"}, "x * 2")
	h := compileLaw(t, e, "h", []string{"x"}, "x - 3")

	seq := law.MustNewMeta(law.MetaDefinition{
		Name:        "pipeline",
		Laws:        []law.Rule{f, g, h},
		Composition: law.Sequence,
	})
	res := seq.Execute([]value.Value{value.Int(10)}, nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(value.Int(27), res.Value))
}

func TestCompileLaw_StructuredResults(t *testing.T) {
	e := New()
	l := compileLaw(t, e, "pack", []string{"a", "b"}, `{"sum": a + b, "both": [a, b], "label": "n" + string(a)}`)

	res := l.Execute(value.Int(2), value.Int(3))
	require.True(t, res.Success, res.Error)
	want := value.MustFromAny(map[string]any{
		"sum":   5,
		"both":  []any{2, 3},
		"label": "n2",
	})
	assert.True(t, value.Equal(want, res.Value), res.Value.String())
}

func TestCompileLaw_VariadicReadsArgs(t *testing.T) {
	e := New()
	l := compileLaw(t, e, "count", nil, "size(args)")
	assert.Equal(t, law.VariadicArity, l.Arity())

	res := l.Execute(value.Int(1), value.String("x"), value.Null())
	require.True(t, res.Success, res.Error)
	assert.True(t, value.Equal(value.Int(3), res.Value))
}

func TestCompileLaw_EvalErrorBecomesFailedResult(t *testing.T) {
	e := New()
	l := compileLaw(t, e, "div", []string{"x"}, "10 / x")

	res := l.Execute(value.Int(0))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Law execution failed: ")
}

func TestCompile_Errors(t *testing.T) {
	e := New()
	_, err := e.CompileLaw([]string{"x"}, "x +")
	assert.ErrorContains(t, err, "CEL compile error")

	_, err = e.CompileLaw([]string{"x"}, "y + 1")
	assert.Error(t, err)

	_, err = e.CompileLaw([]string{"args"}, "args")
	assert.ErrorContains(t, err, "reserved")

	_, err = e.CompileLaw([]string{"x"}, "  ")
	assert.Error(t, err)
}

func TestCompilePredicateAndPostcondition(t *testing.T) {
	e := New()
	pre, err := e.CompilePredicate([]string{"x"}, "x < 0")
	require.NoError(t, err)
	assert.True(t, pre([]value.Value{value.Int(-1)}))
	assert.False(t, pre([]value.Value{value.Int(5)}))
	// Type errors count as unmet.
	assert.False(t, pre([]value.Value{value.String("x")}))

	notBool, err := e.CompilePredicate([]string{"x"}, "x")
	require.NoError(t, err)
	assert.False(t, notBool([]value.Value{value.Int(1)}))

	post, err := e.CompilePostcondition("value > 0")
	require.NoError(t, err)
	assert.True(t, post(value.Int(3)))
	assert.False(t, post(value.Int(-3)))

	enf, err := e.CompileLaw([]string{"x"}, "x * 2")
	require.NoError(t, err)
	l := law.MustNew(law.Definition{
		Name:          "guarded",
		Inputs:        []string{"x"},
		Enforce:       enf,
		Precondition:  pre,
		Postcondition: post,
	})
	res := l.Execute(value.Int(-2))
	assert.False(t, res.Success)
	assert.Equal(t, "Postcondition failed", res.Error)
}

func TestProgramCache(t *testing.T) {
	e := New()
	_, err := e.CompileLaw([]string{"x"}, "x + 1")
	require.NoError(t, err)
	_, err = e.CompilePredicate([]string{"x"}, "x + 1 > 0")
	require.NoError(t, err)
	_, err = e.CompileLaw([]string{"x"}, "x + 1")
	require.NoError(t, err)

	assert.Len(t, e.prgCache, 2)
	assert.Len(t, e.envs, 1)
}
