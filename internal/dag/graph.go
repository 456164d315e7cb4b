package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"sort"
	"strconv"
)

type edgeIndex struct {
	from int
	to   int
}

// Graph is an immutable, validated law graph.
//
// Canonical node indices follow declaration order. Graph is safe for
// concurrent read access.
type Graph struct {
	nodes []Node
	index map[string]int

	edges []edgeIndex // declaration order

	outgoing [][]int // by canonical index, sorted ascending
	incoming [][]int // by canonical index, edge-declaration order
	indeg    []int
	depth    []int
	order    []int

	hash GraphHash
}

// New builds and validates a Graph.
//
// Validation rejects:
//   - an empty node list
//   - invalid or duplicate nodes
//   - edges referencing unknown nodes
//   - duplicate edges and self-loops
//   - any cycle (direct or indirect)
func New(nodes []Node, edges []Edge) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, invalidf("no nodes")
	}

	g := &Graph{
		nodes: make([]Node, 0, len(nodes)),
		index: make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if _, exists := g.index[n.ID]; exists {
			return nil, invalidf("duplicate node id: %q", n.ID)
		}
		g.index[n.ID] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	seen := make(map[edgeIndex]struct{}, len(edges))
	for _, e := range edges {
		from, okFrom := g.index[e.From]
		to, okTo := g.index[e.To]
		if !okFrom {
			return nil, invalidf("edge references unknown node (from): %q", e.From)
		}
		if !okTo {
			return nil, invalidf("edge references unknown node (to): %q", e.To)
		}
		if from == to {
			return nil, invalidf("self-loop: %q -> %q", e.From, e.To)
		}
		pair := edgeIndex{from: from, to: to}
		if _, exists := seen[pair]; exists {
			return nil, invalidf("duplicate edge: %q -> %q", e.From, e.To)
		}
		seen[pair] = struct{}{}
		g.edges = append(g.edges, pair)
	}

	g.outgoing = make([][]int, len(g.nodes))
	g.incoming = make([][]int, len(g.nodes))
	g.indeg = make([]int, len(g.nodes))
	for _, e := range g.edges {
		g.outgoing[e.from] = append(g.outgoing[e.from], e.to)
		g.incoming[e.to] = append(g.incoming[e.to], e.from)
		g.indeg[e.to]++
	}
	for i := range g.outgoing {
		sort.Ints(g.outgoing[i])
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	g.order = g.topoOrderIndices()
	g.depth = g.computeDepth()
	g.hash = g.computeGraphHash()
	return g, nil
}

// Hash returns the stable identity for this graph.
func (g *Graph) Hash() GraphHash { return g.hash }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	return append([]Node(nil), g.nodes...)
}

// Edges returns the edges in declaration order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, Edge{From: g.nodes[e.from].ID, To: g.nodes[e.to].ID})
	}
	return out
}

// Predecessors returns the operands of id in edge-declaration order.
func (g *Graph) Predecessors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.incoming[i])
}

// Successors returns the consumers of id in declaration order.
func (g *Graph) Successors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.outgoing[i])
}

// Terminals returns the nodes nobody consumes, in declaration order.
func (g *Graph) Terminals() []string {
	var out []string
	for i, n := range g.nodes {
		if len(g.outgoing[i]) == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// Depth returns the length of the longest path from any source to id.
func (g *Graph) Depth(id string) (int, bool) {
	i, ok := g.index[id]
	if !ok {
		return 0, false
	}
	return g.depth[i], true
}

// MaxDepth returns the largest node depth.
func (g *Graph) MaxDepth() int {
	deepest := 0
	for _, d := range g.depth {
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}

// TopologicalOrder returns the deterministic execution order of node ids.
func (g *Graph) TopologicalOrder() []string {
	return g.names(g.order)
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = g.nodes[n].ID
	}
	return out
}

func (g *Graph) computeDepth() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.order {
		maxParent := 0
		for _, p := range g.incoming[u] {
			if cand := depth[p] + 1; cand > maxParent {
				maxParent = cand
			}
		}
		depth[u] = maxParent
	}
	return depth
}

func writeField(h hash.Hash, data string) {
	length := uint64(len(data))
	h.Write([]byte{
		byte(length >> 56),
		byte(length >> 48),
		byte(length >> 40),
		byte(length >> 32),
		byte(length >> 24),
		byte(length >> 16),
		byte(length >> 8),
		byte(length),
	})
	h.Write([]byte(data))
}

// definitionHash covers the declarative fields of a node. Go functions have
// no stable identity, so enforcement and composition bodies are excluded.
func definitionHash(n Node) string {
	h := sha256.New()
	writeField(h, string(n.Kind))
	writeField(h, n.ID)
	writeField(h, n.Label)
	if n.Law != nil {
		writeField(h, n.Law.Name())
		inputs := n.Law.Inputs()
		writeField(h, strconv.Itoa(len(inputs)))
		for _, in := range inputs {
			writeField(h, in)
		}
		writeField(h, n.Law.Output())
		writeField(h, n.Law.Complexity())
		writeField(h, strconv.FormatFloat(n.Law.Priority(), 'g', -1, 64))
	}
	writeField(h, string(n.Operator))
	writeField(h, string(n.Resolution))
	writeField(h, string(n.Accepts))
	writeField(h, string(n.Produces))
	return hex.EncodeToString(h.Sum(nil))
}

func (g *Graph) computeGraphHash() GraphHash {
	byID := make([]int, len(g.nodes))
	for i := range byID {
		byID[i] = i
	}
	sort.Slice(byID, func(a, b int) bool { return g.nodes[byID[a]].ID < g.nodes[byID[b]].ID })

	h := sha256.New()
	writeField(h, strconv.Itoa(len(g.nodes)))
	for _, i := range byID {
		writeField(h, g.nodes[i].ID)
		writeField(h, definitionHash(g.nodes[i]))
		writeField(h, strconv.Itoa(len(g.incoming[i])))
		for _, p := range g.incoming[i] {
			writeField(h, g.nodes[p].ID)
		}
	}
	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}
