package knowledge

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/aiarch/aia/internal/domain"
)

// DefaultRecommendLimit is the number of recommendations RecommendNext returns.
const DefaultRecommendLimit = 5

// Graph is an in-memory knowledge graph. The prerequisite subgraph is kept
// acyclic on every insert. Graph is not safe for concurrent use; callers
// guard it.
type Graph struct {
	nodes     map[string]*Node
	prereqIn  map[string][]string // node -> its direct prerequisites
	prereqOut map[string][]string // node -> nodes it is a prerequisite of
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*Node),
		prereqIn:  make(map[string][]string),
		prereqOut: make(map[string][]string),
	}
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

// Nodes returns copies of all nodes ordered by id.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, cloneNode(n))
	}
	slices.SortFunc(out, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Check reports whether Add would accept n, without changing the graph.
func (g *Graph) Check(n Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if _, ok := g.nodes[n.ID]; ok {
		return domain.Validationf("node %s already exists", n.ID)
	}
	for _, e := range n.Edges {
		if e.To == n.ID {
			if e.Relation == RelPrerequisite {
				return fmt.Errorf("node %s is its own prerequisite: %w", n.ID, domain.ErrCycle)
			}
			continue
		}
		if _, ok := g.nodes[e.To]; !ok {
			return domain.Validationf("node %s: edge target %s does not exist", n.ID, e.To)
		}
	}
	return nil
}

// Add inserts a node with its outgoing edges. Every edge target must
// already exist. Nothing is inserted when an error is returned.
func (g *Graph) Add(n Node) error {
	if err := g.Check(n); err != nil {
		return err
	}
	// A fresh node has no incoming edges, so its outgoing edges cannot
	// close a cycle.
	c := cloneNode(&n)
	c.Edges = nil
	g.nodes[n.ID] = &c
	for _, e := range n.Edges {
		if !slices.Contains(g.nodes[n.ID].Edges, e) {
			g.link(n.ID, e)
		}
	}
	return nil
}

// CheckEdge reports whether AddEdge would accept the edge. exists is true
// when the edge is already present, in which case AddEdge is a no-op.
func (g *Graph) CheckEdge(from string, e Edge) (exists bool, err error) {
	if !e.Relation.Valid() {
		return false, domain.Validationf("invalid relation %q", e.Relation)
	}
	if _, ok := g.nodes[from]; !ok {
		return false, fmt.Errorf("node %s: %w", from, domain.ErrNotFound)
	}
	if _, ok := g.nodes[e.To]; !ok {
		return false, fmt.Errorf("node %s: %w", e.To, domain.ErrNotFound)
	}
	if slices.Contains(g.nodes[from].Edges, e) {
		return true, nil
	}
	if e.Relation == RelPrerequisite && g.reaches(e.To, from) {
		return false, fmt.Errorf("%s -> %s: %w", from, e.To, domain.ErrCycle)
	}
	return false, nil
}

// AddEdge adds an edge between two existing nodes. A prerequisite edge is
// rejected with ErrCycle when to already reaches from.
func (g *Graph) AddEdge(from string, e Edge) error {
	exists, err := g.CheckEdge(from, e)
	if err != nil || exists {
		return err
	}
	g.link(from, e)
	return nil
}

func (g *Graph) link(from string, e Edge) {
	g.nodes[from].Edges = append(g.nodes[from].Edges, e)
	if e.Relation == RelPrerequisite {
		g.prereqOut[from] = append(g.prereqOut[from], e.To)
		g.prereqIn[e.To] = append(g.prereqIn[e.To], from)
	}
}

// reaches reports whether dst is reachable from src along prerequisite edges.
func (g *Graph) reaches(src, dst string) bool {
	if src == dst {
		return true
	}
	seen := map[string]bool{src: true}
	stack := []string{src}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.prereqOut[cur] {
			if next == dst {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// LearningPath returns every prerequisite ancestor of target that is not in
// known, dependencies first. The walk continues through known nodes, so a
// prerequisite behind a known node is still listed. Ordering runs over all
// ancestors, known ones included, so transitive order holds; among ready
// nodes the lowest id comes first. The target itself is not part of the
// path.
func (g *Graph) LearningPath(target string, known map[string]bool) ([]Node, error) {
	if _, ok := g.nodes[target]; !ok {
		return nil, fmt.Errorf("node %s: %w", target, domain.ErrNotFound)
	}

	ancestors := make(map[string]bool)
	stack := []string{target}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.prereqIn[cur] {
			if ancestors[p] {
				continue
			}
			ancestors[p] = true
			stack = append(stack, p)
		}
	}

	// Kahn's algorithm over the ancestor subgraph with an id-sorted ready set.
	inDegree := make(map[string]int, len(ancestors))
	var ready []string
	for id := range ancestors {
		for _, p := range g.prereqIn[id] {
			if ancestors[p] {
				inDegree[id]++
			}
		}
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	slices.Sort(ready)

	path := make([]Node, 0, len(ancestors))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		if !known[id] {
			path = append(path, cloneNode(g.nodes[id]))
		}
		for _, next := range g.prereqOut[id] {
			if !ancestors[next] {
				continue
			}
			inDegree[next]--
			if inDegree[next] == 0 {
				i, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, i, next)
			}
		}
	}
	return path, nil
}

// RecommendNext scores the immediate successors of known nodes by the
// summed weight of goal tags they carry and returns the best limit of
// them, score descending then id ascending. Known nodes are never
// recommended.
func (g *Graph) RecommendNext(known map[string]bool, goalTags map[string]float64, limit int) []Recommendation {
	if limit <= 0 {
		limit = DefaultRecommendLimit
	}

	seen := make(map[string]bool)
	var out []Recommendation
	for id := range known {
		n, ok := g.nodes[id]
		if !ok {
			continue
		}
		for _, e := range n.Edges {
			if known[e.To] || seen[e.To] {
				continue
			}
			seen[e.To] = true
			cand := g.nodes[e.To]
			var score float64
			for _, tag := range cand.TagSet() {
				score += goalTags[tag]
			}
			out = append(out, Recommendation{Node: cloneNode(cand), Score: score})
		}
	}

	slices.SortFunc(out, func(a, b Recommendation) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Node.ID, b.Node.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Neighbors returns the outgoing edges of id ordered by target then relation.
func (g *Graph) Neighbors(id string) ([]Edge, error) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node %s: %w", id, domain.ErrNotFound)
	}
	edges := slices.Clone(n.Edges)
	slices.SortFunc(edges, func(a, b Edge) int {
		if c := cmp.Compare(a.To, b.To); c != 0 {
			return c
		}
		return cmp.Compare(a.Relation, b.Relation)
	})
	return edges, nil
}

func cloneNode(n *Node) Node {
	c := *n
	c.Tags = slices.Clone(n.Tags)
	c.Edges = slices.Clone(n.Edges)
	return c
}
