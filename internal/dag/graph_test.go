package dag

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"lawgraph/internal/law"
	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

func incLaw(name string) *law.Law {
	return law.MustNew(law.Definition{
		Name:   name,
		Inputs: []string{"x"},
		Enforce: law.Unary(func(x value.Value) (value.Value, error) {
			n, _ := x.AsInt()
			return value.Int(n + 1), nil
		}),
	})
}

func sumLaw(name string) *law.Law {
	return law.MustNew(law.Definition{
		Name: name,
		Enforce: law.Variadic(func(args []value.Value) (value.Value, error) {
			var total int64
			for _, a := range args {
				n, _ := a.AsInt()
				total += n
			}
			return value.Int(total), nil
		}),
	})
}

func failLaw(name string) *law.Law {
	return law.MustNew(law.Definition{
		Name: name,
		Enforce: law.Variadic(func([]value.Value) (value.Value, error) {
			return value.Null(), fmt.Errorf("boom")
		}),
	})
}

func lawNodes(ids ...string) []Node {
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		out = append(out, LawNode(id, sumLaw(id)))
	}
	return out
}

func TestLawHelpers_DeclareInputsForTheirArity(t *testing.T) {
	for _, l := range []*law.Law{incLaw("inc"), sumLaw("sum"), failLaw("fail")} {
		if a := l.Arity(); a != law.VariadicArity && a != len(l.Inputs()) {
			t.Fatalf("%s: arity %d with inputs %v", l.Name(), a, l.Inputs())
		}
	}
	if res := incLaw("inc").Execute(value.Int(1)); !res.Success || !value.Equal(res.Value, value.Int(2)) {
		t.Fatalf("incLaw(1) = %+v", res)
	}
}

func TestGraphConstruction_SingleNode(t *testing.T) {
	g, err := New(lawNodes("A"), nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if g.Hash() == "" {
		t.Fatalf("expected non-empty graph hash")
	}
	if got := g.TopologicalOrder(); len(got) != 1 || got[0] != "A" {
		t.Fatalf("unexpected topo order: %v", got)
	}
}

func TestGraphConstruction_IndependentNodesKeepDeclarationOrder(t *testing.T) {
	g, err := New(lawNodes("C", "A", "B"), nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got, want := g.TopologicalOrder(), []string{"C", "A", "B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got, want := g.Terminals(), []string{"C", "A", "B"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected terminals %v, got %v", want, got)
	}
}

func TestGraphConstruction_DiamondDependency(t *testing.T) {
	// A -> B, A -> C, B -> D, C -> D
	g, err := New(
		lawNodes("A", "B", "C", "D"),
		[]Edge{{From: "A", To: "B"}, {From: "A", To: "C"}, {From: "B", To: "D"}, {From: "C", To: "D"}},
	)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got, want := g.TopologicalOrder(), []string{"A", "B", "C", "D"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if d, _ := g.Depth("D"); d != 2 {
		t.Fatalf("expected depth 2 for D, got %d", d)
	}
	if g.MaxDepth() != 2 {
		t.Fatalf("expected max depth 2, got %d", g.MaxDepth())
	}
	if got := g.Predecessors("D"); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Fatalf("unexpected predecessors: %v", got)
	}
	if got := g.Terminals(); !reflect.DeepEqual(got, []string{"D"}) {
		t.Fatalf("unexpected terminals: %v", got)
	}
}

func TestGraphConstruction_PredecessorsFollowEdgeDeclaration(t *testing.T) {
	g, err := New(
		lawNodes("A", "B", "C"),
		[]Edge{{From: "B", To: "C"}, {From: "A", To: "C"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := g.Predecessors("C"); !reflect.DeepEqual(got, []string{"B", "A"}) {
		t.Fatalf("expected operands in edge order, got %v", got)
	}
}

func TestGraphValidation_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		nodes []Node
		edges []Edge
	}{
		{"empty", nil, nil},
		{"duplicate node", lawNodes("A", "A"), nil},
		{"unknown from", lawNodes("A"), []Edge{{From: "X", To: "A"}}},
		{"unknown to", lawNodes("A"), []Edge{{From: "A", To: "X"}}},
		{"self loop", lawNodes("A"), []Edge{{From: "A", To: "A"}}},
		{"duplicate edge", lawNodes("A", "B"), []Edge{{From: "A", To: "B"}, {From: "A", To: "B"}}},
		{"law without law", []Node{{ID: "A", Kind: KindLaw}}, nil},
		{"unknown operator", []Node{{ID: "A", Kind: KindOperator, Operator: "xor"}}, nil},
		{"custom without fn", []Node{OperatorNode("A", law.Custom, "")}, nil},
		{"unknown resolution", []Node{OperatorNode("A", law.Conjunction, "coin-flip")}, nil},
		{"custom resolution without resolver", []Node{OperatorNode("A", law.Conjunction, resolve.StrategyCustom)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.nodes, tc.edges)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !errors.Is(err, ErrInvalidGraph) {
				t.Fatalf("expected ErrInvalidGraph, got %v", err)
			}
		})
	}
}

func TestGraphValidation_CycleWitness(t *testing.T) {
	_, err := New(
		lawNodes("A", "B", "C"),
		[]Edge{{From: "A", To: "B"}, {From: "B", To: "C"}, {From: "C", To: "A"}},
	)
	if err == nil {
		t.Fatalf("expected cycle error")
	}
	if !errors.Is(err, ErrCycleFound) {
		t.Fatalf("expected ErrCycleFound, got %v", err)
	}
	var ge *GraphError
	if !errors.As(err, &ge) {
		t.Fatalf("expected *GraphError, got %T", err)
	}
	if want := []string{"A", "B", "C", "A"}; !reflect.DeepEqual(ge.Cycle, want) {
		t.Fatalf("expected cycle %v, got %v", want, ge.Cycle)
	}
}

func TestGraphHash_IndependentOfDeclarationOrder(t *testing.T) {
	a := LawNode("A", sumLaw("a"))
	b := LawNode("B", sumLaw("b"))
	c := OperatorNode("C", law.Conjunction, resolve.StrategyLastWins)

	g1, err := New([]Node{a, b, c}, []Edge{{From: "A", To: "C"}, {From: "B", To: "C"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g2, err := New([]Node{c, b, a}, []Edge{{From: "A", To: "C"}, {From: "B", To: "C"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g1.Hash() != g2.Hash() {
		t.Fatalf("expected equal hashes, got %s vs %s", g1.Hash(), g2.Hash())
	}

	// Operand order is part of identity.
	g3, err := New([]Node{a, b, c}, []Edge{{From: "B", To: "C"}, {From: "A", To: "C"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g1.Hash() == g3.Hash() {
		t.Fatalf("expected operand order to change the hash")
	}
}

func TestGraphHash_ChangesWithDefinition(t *testing.T) {
	g1, err := New([]Node{LawNode("A", sumLaw("a"))}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g2, err := New([]Node{LawNode("A", sumLaw("other"))}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g1.Hash() == g2.Hash() {
		t.Fatalf("expected different hashes")
	}
}
