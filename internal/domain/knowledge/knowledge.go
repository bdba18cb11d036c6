// Package knowledge defines the skill / tool / strategy graph used to plan
// what an agent must learn or acquire to take on a goal.
package knowledge

import (
	"slices"

	"github.com/aiarch/aia/internal/domain"
)

// Kind classifies a knowledge node.
type Kind string

const (
	KindSkill    Kind = "skill"
	KindTool     Kind = "tool"
	KindStrategy Kind = "strategy"
)

// Valid reports whether k is a known node kind.
func (k Kind) Valid() bool {
	return k == KindSkill || k == KindTool || k == KindStrategy
}

// Relation is the type of a directed edge.
type Relation string

const (
	// RelPrerequisite on A -> B means A must be learned before B.
	RelPrerequisite   Relation = "prerequisite"
	RelRequiresTool   Relation = "requires_tool"
	RelRecommendedFor Relation = "recommended_for"
)

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	return r == RelPrerequisite || r == RelRequiresTool || r == RelRecommendedFor
}

// Edge is an outgoing typed edge.
type Edge struct {
	To       string   `json:"to"`
	Relation Relation `json:"relation"`
}

// Node is a skill, tool or strategy.
type Node struct {
	Kind     Kind     `json:"kind"`
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
	Edges    []Edge   `json:"edges,omitempty"`
}

// TagSet returns the labels a node can be matched on: its tags plus its
// id, name and category.
func (n *Node) TagSet() []string {
	set := append([]string{n.ID, n.Name}, n.Tags...)
	if n.Category != "" {
		set = append(set, n.Category)
	}
	slices.Sort(set)
	return slices.Compact(set)
}

// Validate checks a node's own fields. Edge targets are checked by the graph.
func (n *Node) Validate() error {
	if n.ID == "" {
		return domain.Validationf("node id is required")
	}
	if n.Name == "" {
		return domain.Validationf("node %s: name is required", n.ID)
	}
	if !n.Kind.Valid() {
		return domain.Validationf("node %s: invalid kind %q", n.ID, n.Kind)
	}
	for _, e := range n.Edges {
		if !e.Relation.Valid() {
			return domain.Validationf("node %s: invalid relation %q", n.ID, e.Relation)
		}
		if e.To == "" {
			return domain.Validationf("node %s: edge target is required", n.ID)
		}
	}
	return nil
}

// Recommendation is one scored next step.
type Recommendation struct {
	Node  Node    `json:"node"`
	Score float64 `json:"score"`
}
