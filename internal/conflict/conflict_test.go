package conflict

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawgraph/internal/dag"
	"lawgraph/internal/law"
	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

func identity(name, output string) *law.Law {
	return law.MustNew(law.Definition{
		Name:   name,
		Inputs: []string{"x"},
		Output: output,
		Enforce: law.Unary(func(x value.Value) (value.Value, error) {
			return x, nil
		}),
	})
}

func pair(name string) *law.Law {
	return law.MustNew(law.Definition{
		Name:   name,
		Inputs: []string{"a", "b"},
		Enforce: law.Binary(func(a, _ value.Value) (value.Value, error) {
			return a, nil
		}),
	})
}

func lawNodes(ids ...string) []dag.Node {
	out := make([]dag.Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, dag.LawNode(id, identity(id, id)))
	}
	return out
}

func edges(pairs ...string) []dag.Edge {
	out := make([]dag.Edge, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, dag.Edge{From: pairs[i], To: pairs[i+1]})
	}
	return out
}

func TestLawHelpers_DeclareInputsForTheirArity(t *testing.T) {
	for _, l := range []*law.Law{identity("id", "out"), pair("pair")} {
		assert.Len(t, l.Inputs(), l.Arity(), l.Name())
	}
}

func TestDetect_DiamondHasNoCycles(t *testing.T) {
	got := Detect(lawNodes("A", "B", "C", "D"), edges("A", "B", "A", "C", "B", "D", "C", "D"))
	assert.Empty(t, Cycles(got))
	assert.Empty(t, got)
}

func TestDetect_TriangleReportsOneCriticalCycle(t *testing.T) {
	got := Detect(lawNodes("A", "B", "C"), edges("A", "B", "B", "C", "C", "A"))
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, TypeDependency, c.Type)
	assert.Equal(t, SeverityCritical, c.Severity)
	assert.True(t, c.IsCycle())
	assert.Equal(t, []string{"A", "B", "C", "A"}, c.Nodes)
	assert.Contains(t, c.Description, "A -> B -> C -> A")
	assert.NotEmpty(t, c.Suggestion)
	assert.NotEmpty(t, c.ID)
}

func TestDetect_CycleStartsAtEarliestDeclaredNode(t *testing.T) {
	got := Detect(lawNodes("C", "A", "B"), edges("A", "B", "B", "C", "C", "A"))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"C", "A", "B", "C"}, got[0].Nodes)
}

func TestDetect_SelfLoopAndDisjointCycles(t *testing.T) {
	got := Detect(
		lawNodes("A", "B", "C", "D", "E"),
		edges("A", "A", "B", "C", "C", "B", "D", "E"),
	)
	cycles := Cycles(got)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"A", "A"}, cycles[0].Nodes)
	assert.Contains(t, cycles[0].Description, "depends on itself")
	assert.Equal(t, []string{"B", "C", "B"}, cycles[1].Nodes)
}

func TestDetect_CyclesSharingANodeAreAllReported(t *testing.T) {
	got := Detect(lawNodes("A", "B", "C"), edges("A", "B", "B", "A", "A", "C", "C", "A"))
	cycles := Cycles(got)
	require.Len(t, cycles, 2)
	assert.Equal(t, []string{"A", "B", "A"}, cycles[0].Nodes)
	assert.Equal(t, []string{"A", "C", "A"}, cycles[1].Nodes)
	assert.NotEqual(t, cycles[0].ID, cycles[1].ID)
}

func TestDetect_Idempotent(t *testing.T) {
	nodes := append(lawNodes("A", "B", "C"),
		dag.OperatorNode("AND", law.Conjunction, resolve.StrategyLastWins),
		dag.LawNode("isValid", identity("v", "isValid")),
		dag.LawNode("isInvalid", identity("iv", "isInvalid")),
	)
	es := edges("A", "B", "B", "C", "C", "A", "isValid", "AND", "isInvalid", "AND", "ghost", "A")

	first := Detect(nodes, es)
	second := Detect(nodes, es)
	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestDetect_StructuralProblemsComeFirst(t *testing.T) {
	nodes := []dag.Node{
		dag.LawNode("A", identity("a", "a")),
		dag.LawNode("A", identity("a2", "a2")),
		{ID: "broken", Kind: dag.KindLaw},
		dag.LawNode("B", identity("b", "b")),
	}
	got := Detect(nodes, edges("A", "B", "A", "B", "B", "missing", "B", "A"))

	require.GreaterOrEqual(t, len(got), 5)
	var checks []Check
	for _, c := range got {
		checks = append(checks, c.Check)
	}
	assert.Equal(t, []Check{CheckStructure, CheckStructure, CheckStructure, CheckStructure, CheckCycle}, checks)
	assert.Contains(t, got[0].Description, `duplicate node id "A"`)
	assert.Contains(t, got[1].Description, "has no law")
	assert.Contains(t, got[2].Description, "duplicate edge")
	assert.Contains(t, got[3].Description, `unknown node "missing"`)
	for _, c := range got {
		assert.Equal(t, SeverityCritical, c.Severity)
	}
}

func TestDetect_OperatorArity(t *testing.T) {
	nodes := []dag.Node{
		dag.LawNode("x", identity("x", "x")),
		dag.LawNode("two", pair("two")),
		dag.OperatorNode("IMP", law.Implication, ""),
		dag.OperatorNode("EMPTY", law.Disjunction, ""),
		dag.OperatorNode("SEQ", law.Sequence, ""),
	}
	got := Detect(nodes, edges("x", "IMP", "x", "SEQ", "two", "SEQ"))

	require.Len(t, got, 3)
	for _, c := range got {
		assert.Equal(t, CheckArity, c.Check)
		assert.Equal(t, SeverityHigh, c.Severity)
	}
	assert.Equal(t, []string{"x", "IMP"}, got[0].Nodes)
	assert.Equal(t, []string{"EMPTY"}, got[1].Nodes)
	assert.Equal(t, []string{"two", "SEQ"}, got[2].Nodes)
}

func TestDetect_OppositePolarity(t *testing.T) {
	cases := []struct {
		a, b string
		op   law.Composition
		want bool
	}{
		{"isValid", "isInvalid", law.Conjunction, true},
		{"allowAccess", "denyAccess", law.Disjunction, true},
		{"is_expired", "is_not_expired", law.Conjunction, true},
		{"isValid", "isNotInvalid", law.Conjunction, false},
		{"isValid", "isExpired", law.Conjunction, false},
		{"isValid", "isInvalid", law.Parallel, false},
		{"valid", "invalid", law.Conjunction, false},
	}
	for _, tc := range cases {
		t.Run(tc.a+"/"+tc.b+"/"+string(tc.op), func(t *testing.T) {
			nodes := []dag.Node{
				dag.LawNode("a", identity("a", tc.a)),
				dag.LawNode("b", identity("b", tc.b)),
				dag.OperatorNode("OP", tc.op, ""),
			}
			got := Detect(nodes, edges("a", "OP", "b", "OP"))
			if !tc.want {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, TypeLogical, got[0].Type)
			assert.Equal(t, SeverityMedium, got[0].Severity)
			assert.Equal(t, []string{"a", "b", "OP"}, got[0].Nodes)
		})
	}
}

func TestDetect_ShapeMismatch(t *testing.T) {
	scalar := dag.LawNode("s", identity("s", "s"))
	scalar.Produces = value.ShapeScalar
	wantsList := dag.LawNode("l", identity("l", "l"))
	wantsList.Accepts = value.ShapeList
	wantsScalar := dag.LawNode("w", identity("w", "w"))
	wantsScalar.Accepts = value.ShapeScalar

	nodes := []dag.Node{
		scalar,
		wantsList,
		dag.OperatorNode("PAR", law.Parallel, ""),
		wantsScalar,
	}
	got := Detect(nodes, edges("s", "l", "s", "PAR", "PAR", "w"))

	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, TypeValue, c.Type)
		assert.Equal(t, SeverityLow, c.Severity)
	}
	assert.Equal(t, []string{"s", "l"}, got[0].Nodes)
	assert.Equal(t, []string{"PAR", "w"}, got[1].Nodes)
}

func TestBlockingAndSummary(t *testing.T) {
	nodes := []dag.Node{
		dag.LawNode("A", identity("a", "a")),
		dag.LawNode("B", identity("b", "b")),
		dag.OperatorNode("EMPTY", law.Conjunction, ""),
	}
	got := Detect(nodes, edges("A", "B", "B", "A"))
	require.Len(t, got, 2)

	assert.Len(t, Blocking(got, SeverityCritical), 1)
	assert.Len(t, Blocking(got, SeverityHigh), 2)
	assert.Equal(t, map[Severity]int{SeverityCritical: 1, SeverityHigh: 1}, Summary(got))
}

func TestSeverity_ParseAndText(t *testing.T) {
	s, err := ParseSeverity(" High ")
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, s)
	assert.True(t, SeverityCritical.AtLeast(SeverityHigh))
	assert.False(t, SeverityLow.AtLeast(SeverityMedium))

	_, err = ParseSeverity("info")
	assert.Error(t, err)

	b, err := json.Marshal(Conflict{Severity: SeverityCritical})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"severity":"critical"`)
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"is", "http", "valid"}, splitWords("isHTTPValid"))
	assert.Equal(t, []string{"is", "not", "expired"}, splitWords("is_not-expired"))
	assert.Equal(t, []string{"allow", "v2", "access"}, splitWords("allowV2Access"))
}
