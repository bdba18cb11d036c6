package knowledge

import (
	"slices"

	"github.com/aiarch/aia/internal/domain"
)

// Query operations.
const (
	OpLearningPath  = "learning_path"
	OpRecommendNext = "recommend_next"
	OpNeighbors     = "neighbors"
	OpNode          = "node"
)

// Query is one read against the graph.
type Query struct {
	Op       string             `json:"op"`
	ID       string             `json:"id,omitempty"` // target for learning_path, subject for neighbors and node
	Known    []string           `json:"known,omitempty"`
	GoalTags map[string]float64 `json:"goal_tags,omitempty"`
	Limit    int                `json:"limit,omitempty"`
}

// Validate checks the query and sorts Known so equal queries compare equal.
func (q *Query) Validate() error {
	switch q.Op {
	case OpLearningPath, OpNeighbors, OpNode:
		if q.ID == "" {
			return domain.Validationf("%s requires id", q.Op)
		}
	case OpRecommendNext:
		if len(q.Known) == 0 {
			return domain.Validationf("recommend_next requires known nodes")
		}
	default:
		return domain.Validationf("unknown query op %q", q.Op)
	}
	if q.Limit < 0 {
		return domain.Validationf("limit must be >= 0")
	}
	slices.Sort(q.Known)
	q.Known = slices.Compact(q.Known)
	return nil
}

// KnownSet returns Known as a lookup set.
func (q *Query) KnownSet() map[string]bool {
	set := make(map[string]bool, len(q.Known))
	for _, id := range q.Known {
		set[id] = true
	}
	return set
}

// QueryResult holds whichever field the op fills.
type QueryResult struct {
	Op              string           `json:"op"`
	Path            []Node           `json:"path,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	Edges           []Edge           `json:"edges,omitempty"`
	Node            *Node            `json:"node,omitempty"`
	Cached          bool             `json:"cached"`
	ExecutionTimeMS float64          `json:"execution_time_ms"`
}
