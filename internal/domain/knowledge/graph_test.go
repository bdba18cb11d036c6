package knowledge_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/knowledge"
)

func prereq(to string) knowledge.Edge {
	return knowledge.Edge{To: to, Relation: knowledge.RelPrerequisite}
}

func skill(id string, tags []string, edges ...knowledge.Edge) knowledge.Node {
	return knowledge.Node{Kind: knowledge.KindSkill, ID: id, Name: id, Category: "eng", Tags: tags, Edges: edges}
}

// buildGraph wires:
//
//	basics -> syntax -> types -> generics
//	basics -> tooling -> generics
//	syntax -> concurrency
func buildGraph(t *testing.T) *knowledge.Graph {
	t.Helper()
	g := knowledge.NewGraph()
	for _, n := range []knowledge.Node{
		skill("generics", []string{"advanced"}),
		skill("concurrency", []string{"advanced", "backend"}),
		skill("types", nil, prereq("generics")),
		skill("tooling", []string{"ops"}, prereq("generics")),
		skill("syntax", nil, prereq("types"), prereq("concurrency")),
		skill("basics", nil, prereq("syntax"), prereq("tooling")),
	} {
		if err := g.Add(n); err != nil {
			t.Fatalf("add %s: %v", n.ID, err)
		}
	}
	return g
}

func ids(nodes []knowledge.Node) []string {
	out := make([]string, len(nodes))
	for i := range nodes {
		out[i] = nodes[i].ID
	}
	return out
}

func TestAddRejectsDanglingEdge(t *testing.T) {
	g := knowledge.NewGraph()
	err := g.Add(skill("a", nil, prereq("missing")))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if g.Len() != 0 {
		t.Fatal("failed add must not insert")
	}
}

func TestAddRejectsSelfPrerequisite(t *testing.T) {
	g := knowledge.NewGraph()
	if err := g.Add(skill("a", nil, prereq("a"))); !errors.Is(err, domain.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestAddEdgeRejectsCycle(t *testing.T) {
	g := buildGraph(t)
	err := g.AddEdge("generics", prereq("basics"))
	if !errors.Is(err, domain.ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	// Non-prerequisite back edges are allowed.
	if err := g.AddEdge("generics", knowledge.Edge{To: "basics", Relation: knowledge.RelRecommendedFor}); err != nil {
		t.Fatalf("recommended_for back edge: %v", err)
	}
}

func TestLearningPathOrder(t *testing.T) {
	g := buildGraph(t)
	path, err := g.LearningPath("generics", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"basics", "syntax", "tooling", "types"}
	if got := ids(path); !slices.Equal(got, want) {
		t.Fatalf("LearningPath() = %v, want %v", got, want)
	}
}

func TestLearningPathSkipsKnown(t *testing.T) {
	g := buildGraph(t)
	known := map[string]bool{"syntax": true, "basics": true}
	path, err := g.LearningPath("generics", known)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tooling", "types"}
	if got := ids(path); !slices.Equal(got, want) {
		t.Fatalf("LearningPath() = %v, want %v", got, want)
	}
}

func TestLearningPathWalksThroughKnown(t *testing.T) {
	chain := knowledge.NewGraph()
	for _, n := range []knowledge.Node{
		skill("c", nil),
		skill("b", nil, prereq("c")),
		skill("a", nil, prereq("b")),
	} {
		if err := chain.Add(n); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		g      *knowledge.Graph
		target string
		known  map[string]bool
		want   []string
	}{
		{"chain behind known middle", chain, "c", map[string]bool{"b": true}, []string{"a"}},
		{"chain all known", chain, "c", map[string]bool{"a": true, "b": true}, []string{}},
		{"known types keeps its ancestors", buildGraph(t), "generics", map[string]bool{"types": true}, []string{"basics", "syntax", "tooling"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := tt.g.LearningPath(tt.target, tt.known)
			if err != nil {
				t.Fatal(err)
			}
			if got := ids(path); !slices.Equal(got, tt.want) {
				t.Fatalf("LearningPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Every returned node must come after all of its returned prerequisites,
// and no known node may appear.
func TestLearningPathIsTopological(t *testing.T) {
	g := buildGraph(t)
	for _, known := range []map[string]bool{nil, {"tooling": true}, {"types": true}, {"basics": true}} {
		path, err := g.LearningPath("generics", known)
		if err != nil {
			t.Fatal(err)
		}
		pos := make(map[string]int)
		for i, n := range path {
			if known[n.ID] {
				t.Fatalf("known node %s returned", n.ID)
			}
			pos[n.ID] = i
		}
		for _, n := range path {
			for _, e := range n.Edges {
				if j, ok := pos[e.To]; ok && e.Relation == knowledge.RelPrerequisite && j < pos[n.ID] {
					t.Fatalf("%s appears after its dependent %s", n.ID, e.To)
				}
			}
		}
	}
}

func TestLearningPathUnknownTarget(t *testing.T) {
	g := buildGraph(t)
	if _, err := g.LearningPath("nope", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecommendNext(t *testing.T) {
	g := buildGraph(t)
	recs := g.RecommendNext(map[string]bool{"syntax": true, "basics": true}, map[string]float64{"advanced": 1, "backend": 2}, 0)

	got := ids(func() []knowledge.Node {
		out := make([]knowledge.Node, len(recs))
		for i := range recs {
			out[i] = recs[i].Node
		}
		return out
	}())
	// concurrency scores 3; tooling and types score 0 and tie on id.
	want := []string{"concurrency", "tooling", "types"}
	if !slices.Equal(got, want) {
		t.Fatalf("RecommendNext() = %v, want %v", got, want)
	}
	if recs[0].Score != 3 {
		t.Fatalf("expected score 3, got %v", recs[0].Score)
	}
}

func TestRecommendNextLimit(t *testing.T) {
	g := knowledge.NewGraph()
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		if err := g.Add(skill(id, nil)); err != nil {
			t.Fatal(err)
		}
	}
	root := skill("root", nil)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		root.Edges = append(root.Edges, knowledge.Edge{To: id, Relation: knowledge.RelRecommendedFor})
	}
	if err := g.Add(root); err != nil {
		t.Fatal(err)
	}
	recs := g.RecommendNext(map[string]bool{"root": true}, nil, 0)
	if len(recs) != knowledge.DefaultRecommendLimit {
		t.Fatalf("expected %d recommendations, got %d", knowledge.DefaultRecommendLimit, len(recs))
	}
	if recs[0].Node.ID != "a" || recs[4].Node.ID != "e" {
		t.Fatalf("unexpected tie-break order: %v .. %v", recs[0].Node.ID, recs[4].Node.ID)
	}
}

func TestCheckDoesNotMutate(t *testing.T) {
	g := buildGraph(t)
	if err := g.Check(skill("new", nil, prereq("basics"))); err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Node("new"); ok {
		t.Fatal("Check inserted the node")
	}
	exists, err := g.CheckEdge("generics", prereq("basics"))
	if !errors.Is(err, domain.ErrCycle) || exists {
		t.Fatalf("expected ErrCycle, got exists=%v err=%v", exists, err)
	}
	exists, err = g.CheckEdge("basics", prereq("syntax"))
	if err != nil || !exists {
		t.Fatalf("expected existing edge, got exists=%v err=%v", exists, err)
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		q       knowledge.Query
		wantErr bool
	}{
		{"learning path", knowledge.Query{Op: knowledge.OpLearningPath, ID: "x"}, false},
		{"learning path without id", knowledge.Query{Op: knowledge.OpLearningPath}, true},
		{"recommend", knowledge.Query{Op: knowledge.OpRecommendNext, Known: []string{"b", "a", "b"}}, false},
		{"recommend without known", knowledge.Query{Op: knowledge.OpRecommendNext}, true},
		{"node", knowledge.Query{Op: knowledge.OpNode, ID: "x"}, false},
		{"unknown op", knowledge.Query{Op: "shortest_path"}, true},
		{"negative limit", knowledge.Query{Op: knowledge.OpNeighbors, ID: "x", Limit: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}

	q := knowledge.Query{Op: knowledge.OpRecommendNext, Known: []string{"b", "a", "b"}}
	_ = q.Validate()
	if !slices.Equal(q.Known, []string{"a", "b"}) {
		t.Fatalf("Known not canonicalised: %v", q.Known)
	}
}
