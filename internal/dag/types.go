package dag

import (
	"fmt"

	"lawgraph/internal/law"
	"lawgraph/internal/resolve"
	"lawgraph/internal/value"
)

// GraphHash is the deterministic identity of a Graph.
//
// It covers node definitions and, per node, the ordered list of its
// operands. It does not depend on the order nodes were declared in.
type GraphHash string

func (h GraphHash) String() string { return string(h) }

// NodeKind says whether a node runs a single law or composes its operands.
type NodeKind string

const (
	KindLaw      NodeKind = "law"
	KindOperator NodeKind = "operator"
)

// Edge is a dependency: To consumes the output of From.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Node is one vertex of a law graph.
//
// A law node executes Law with its operands' values as arguments, or with
// its seed when it has no operands. An operator node combines its operands'
// results under Operator.
type Node struct {
	ID    string
	Kind  NodeKind
	Label string

	Law *law.Law

	Operator   law.Composition
	Resolution resolve.Strategy
	// Compose is required for custom operators.
	Compose law.CompositionFunc
	// Resolver is required for the custom resolution strategy.
	Resolver resolve.Func

	// Accepts and Produces are advisory shapes used by conflict detection.
	Accepts  value.Shape
	Produces value.Shape
}

// LawNode returns a law node running l.
func LawNode(id string, l *law.Law) Node {
	return Node{ID: id, Kind: KindLaw, Law: l}
}

// OperatorNode returns an operator node composing its operands under op.
func OperatorNode(id string, op law.Composition, strategy resolve.Strategy) Node {
	return Node{ID: id, Kind: KindOperator, Operator: op, Resolution: strategy}
}

// Validate checks the node in isolation.
func (n Node) Validate() error {
	if n.ID == "" {
		return invalidf("node id is required")
	}
	switch n.Kind {
	case KindLaw:
		if n.Law == nil {
			return invalidf("law node %q has no law", n.ID)
		}
	case KindOperator:
		if !n.Operator.Valid() {
			return invalidf("operator node %q has unknown operator %q", n.ID, n.Operator)
		}
		if n.Operator == law.Custom && n.Compose == nil {
			return invalidf("custom operator %q has no composition function", n.ID)
		}
		if n.Resolution != "" && !n.Resolution.Valid() {
			return invalidf("operator node %q has unknown resolution %q", n.ID, n.Resolution)
		}
		if n.Resolution == resolve.StrategyCustom && n.Resolver == nil {
			return invalidf("operator node %q has custom resolution without a resolver", n.ID)
		}
	default:
		return invalidf("node %q has unknown kind %q", n.ID, n.Kind)
	}
	return nil
}

// DisplayName is the label, or the ID when no label is set.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

// Output is the name a law node claims to produce, or the operator kind.
func (n Node) Output() string {
	if n.Kind == KindLaw && n.Law != nil {
		return n.Law.Output()
	}
	return string(n.Operator)
}

func (n Node) String() string {
	if n.Kind == KindOperator {
		return fmt.Sprintf("%s(%s)", n.ID, n.Operator)
	}
	return n.ID
}
