package conflict

import (
	"fmt"
	"strings"

	"lawgraph/internal/dag"
	"lawgraph/internal/law"
	"lawgraph/internal/value"
)

type detector struct {
	nodes []dag.Node
	index map[string]int

	// adj and operands only contain edges between known nodes, without
	// duplicates, in edge-declaration order.
	adj      [][]int
	operands [][]int

	out []Conflict
}

// Detect analyses nodes and edges and returns every conflict found.
//
// Detect is pure: it does not execute laws and returns identical results for
// identical input. Conflicts are reported grouped by check (structure,
// cycles, operator arity, polarity, shape) and, within a check, in node
// declaration order.
func Detect(nodes []dag.Node, edges []dag.Edge) []Conflict {
	d := &detector{index: make(map[string]int, len(nodes))}
	d.structure(nodes, edges)
	d.cycles()
	d.arity()
	d.polarity()
	d.shapes()
	return d.out
}

func (d *detector) add(c Conflict) { d.out = append(d.out, c) }

func (d *detector) structure(nodes []dag.Node, edges []dag.Edge) {
	reported := make(map[string]bool)
	for i, n := range nodes {
		if n.ID == "" {
			d.add(newConflict(TypeDependency, CheckStructure, SeverityCritical, nil,
				fmt.Sprintf("node at position %d has no id", i),
				"Give every node a unique id."))
			continue
		}
		if _, dup := d.index[n.ID]; dup {
			if !reported[n.ID] {
				reported[n.ID] = true
				d.add(newConflict(TypeDependency, CheckStructure, SeverityCritical, []string{n.ID},
					fmt.Sprintf("duplicate node id %q", n.ID),
					"Rename one of the nodes; edges refer to nodes by id."))
			}
			continue
		}
		if err := n.Validate(); err != nil {
			d.add(newConflict(TypeDependency, CheckStructure, SeverityCritical, []string{n.ID},
				err.Error(),
				"Fix the node definition before running the graph."))
		}
		d.index[n.ID] = len(d.nodes)
		d.nodes = append(d.nodes, n)
	}

	d.adj = make([][]int, len(d.nodes))
	d.operands = make([][]int, len(d.nodes))
	seen := make(map[[2]int]bool, len(edges))
	for _, e := range edges {
		from, okFrom := d.index[e.From]
		to, okTo := d.index[e.To]
		if !okFrom || !okTo {
			missing := e.From
			if okFrom {
				missing = e.To
			}
			d.add(newConflict(TypeDependency, CheckStructure, SeverityCritical, []string{e.From, e.To},
				fmt.Sprintf("edge %s -> %s references unknown node %q", e.From, e.To, missing),
				"Declare the node or remove the edge."))
			continue
		}
		key := [2]int{from, to}
		if seen[key] {
			d.add(newConflict(TypeDependency, CheckStructure, SeverityCritical, []string{e.From, e.To},
				fmt.Sprintf("duplicate edge %s -> %s", e.From, e.To),
				"Remove the repeated edge; an operand is consumed once."))
			continue
		}
		seen[key] = true
		d.adj[from] = append(d.adj[from], to)
		d.operands[to] = append(d.operands[to], from)
	}
}

// cycles runs an independent depth-first search from every node. Each root
// gets fresh visited and recursion-stack state, so a shared descendant is
// never mistaken for a back edge. Every back edge found from a root yields a
// cycle; rotations of one cycle are reported once.
func (d *detector) cycles() {
	reported := make(map[string]bool)
	for root := range d.nodes {
		for _, path := range d.findCycles(root) {
			ids := d.normalizeCycle(path)
			key := strings.Join(ids, "\x1f")
			if reported[key] {
				continue
			}
			reported[key] = true

			desc := "circular dependency: " + strings.Join(ids, " -> ")
			if len(ids) == 2 {
				desc = fmt.Sprintf("node %q depends on itself", ids[0])
			}
			d.add(newConflict(TypeDependency, CheckCycle, SeverityCritical, ids, desc,
				"Break the cycle by removing one of its edges; laws must form a directed acyclic graph."))
		}
	}
}

// findCycles returns one closed path [v ... v] per back edge reachable from
// root, in edge-declaration order.
func (d *detector) findCycles(root int) [][]int {
	visited := make([]bool, len(d.nodes))
	onStack := make([]bool, len(d.nodes))
	var stack []int
	var found [][]int

	var dfs func(u int)
	dfs = func(u int) {
		visited[u] = true
		onStack[u] = true
		stack = append(stack, u)
		for _, v := range d.adj[u] {
			if onStack[v] {
				for i, s := range stack {
					if s == v {
						cycle := append([]int(nil), stack[i:]...)
						found = append(found, append(cycle, v))
						break
					}
				}
				continue
			}
			if !visited[v] {
				dfs(v)
			}
		}
		onStack[u] = false
		stack = stack[:len(stack)-1]
	}
	dfs(root)
	return found
}

// normalizeCycle rotates a closed path so it starts at its earliest declared
// node, making every rotation of one cycle compare equal.
func (d *detector) normalizeCycle(path []int) []string {
	open := path[:len(path)-1]
	start := 0
	for i, n := range open {
		if n < open[start] {
			start = i
		}
	}
	ids := make([]string, 0, len(path))
	for i := range open {
		ids = append(ids, d.nodes[open[(start+i)%len(open)]].ID)
	}
	return append(ids, ids[0])
}

func (d *detector) arity() {
	for i, n := range d.nodes {
		if n.Kind != dag.KindOperator {
			continue
		}
		ops := d.operands[i]
		switch {
		case len(ops) == 0:
			d.add(newConflict(TypeDependency, CheckArity, SeverityHigh, []string{n.ID},
				fmt.Sprintf("%s operator %q has no operands", n.Operator, n.ID),
				"Connect at least one law to the operator or remove it."))
		case n.Operator == law.Implication && len(ops) != 2:
			d.add(newConflict(TypeDependency, CheckArity, SeverityHigh, d.withNode(ops, i),
				fmt.Sprintf("implication %q needs exactly 2 operands (antecedent, consequent), has %d", n.ID, len(ops)),
				"Wire the antecedent first and the consequent second."))
		case n.Operator == law.Sequence:
			for _, s := range ops[1:] {
				stage := d.nodes[s]
				if stage.Kind != dag.KindLaw {
					d.add(newConflict(TypeDependency, CheckArity, SeverityHigh, []string{stage.ID, n.ID},
						fmt.Sprintf("sequence %q stage %q is an operator; stages after the first must be laws", n.ID, stage.ID),
						"Feed the operator's output into the sequence as its first operand instead."))
					continue
				}
				if stage.Law == nil {
					continue
				}
				if a := stage.Law.Arity(); a != 1 && a != law.VariadicArity {
					d.add(newConflict(TypeDependency, CheckArity, SeverityHigh, []string{stage.ID, n.ID},
						fmt.Sprintf("sequence %q stage %q takes %d arguments; a sequence passes exactly one", n.ID, stage.ID, a),
						"Use single-input laws after the first stage of a sequence."))
				}
			}
		}
	}
}

func (d *detector) withNode(ops []int, node int) []string {
	ids := make([]string, 0, len(ops)+1)
	for _, o := range ops {
		ids = append(ids, d.nodes[o].ID)
	}
	return append(ids, d.nodes[node].ID)
}

func (d *detector) polarity() {
	for i, n := range d.nodes {
		if n.Kind != dag.KindOperator || (n.Operator != law.Conjunction && n.Operator != law.Disjunction) {
			continue
		}
		var laws []dag.Node
		for _, o := range d.operands[i] {
			if d.nodes[o].Kind == dag.KindLaw {
				laws = append(laws, d.nodes[o])
			}
		}
		for a := 0; a < len(laws); a++ {
			for b := a + 1; b < len(laws); b++ {
				outA, outB := laws[a].Output(), laws[b].Output()
				if !opposite(outA, outB) {
					continue
				}
				suggestion := "Opposite conditions under a conjunction can never both hold; use a disjunction or normalise one output with a transform law."
				if n.Operator == law.Disjunction {
					suggestion = "Opposite conditions under a disjunction always let one succeed; use a conjunction or an implication, or normalise one output with a transform law."
				}
				d.add(newConflict(TypeLogical, CheckPolarity, SeverityMedium, []string{laws[a].ID, laws[b].ID, n.ID},
					fmt.Sprintf("%q (%s) and %q (%s) feed %s %q with opposite polarity", outA, laws[a].ID, outB, laws[b].ID, n.Operator, n.ID),
					suggestion))
			}
		}
	}
}

func (d *detector) shapes() {
	for from, targets := range d.adj {
		for _, to := range targets {
			if from == to {
				continue
			}
			src, dst := d.nodes[from], d.nodes[to]
			produced := producedShape(src)
			if dst.Accepts.Accepts(produced) {
				continue
			}
			d.add(newConflict(TypeValue, CheckShape, SeverityLow, []string{src.ID, dst.ID},
				fmt.Sprintf("%q expects %s input but %q produces %s", dst.ID, dst.Accepts, src.ID, produced),
				"Insert a transform law between the nodes or correct the declared shapes."))
		}
	}
}

func producedShape(n dag.Node) value.Shape {
	if n.Produces != "" && n.Produces != value.ShapeAny {
		return n.Produces
	}
	if n.Kind == dag.KindOperator && n.Operator == law.Parallel {
		return value.ShapeList
	}
	return value.ShapeAny
}
