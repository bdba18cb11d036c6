// Package matching scores agents against task requirements.
//
// Every function here is pure: identical inputs always produce identical,
// identically ordered outputs.
package matching

import (
	"cmp"
	"maps"
	"slices"

	"github.com/aiarch/aia/internal/domain/agent"
	"github.com/aiarch/aia/internal/domain/task"
)

// Candidate is one ranked agent.
type Candidate struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
}

// Score returns how well caps covers reqs, in [0,1].
//
// Each requirement r contributes min(a, r) * r, so skills with a higher
// required level weigh more. A task without requirements scores 0.
func Score(caps agent.Capabilities, reqs task.Requirements) float64 {
	var sum, total float64
	// Sorted keys keep float summation order stable across calls.
	for _, skill := range slices.Sorted(maps.Keys(reqs)) {
		r := reqs[skill]
		sum += min(caps[skill], r) * r
		total += r
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// RankAgents returns idle agents from pool ordered by score descending,
// ties broken by agent id ascending. Busy and offline agents are excluded.
func RankAgents(pool []agent.Agent, reqs task.Requirements) []Candidate {
	out := make([]Candidate, 0, len(pool))
	for i := range pool {
		if pool[i].Status != agent.StatusIdle {
			continue
		}
		out = append(out, Candidate{AgentID: pool[i].ID, Score: Score(pool[i].Capabilities, reqs)})
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	return out
}

// Best returns the highest-ranked candidate scoring strictly above
// minScore. ok is false when no idle agent qualifies.
func Best(pool []agent.Agent, reqs task.Requirements, minScore float64) (c Candidate, ok bool) {
	ranked := RankAgents(pool, reqs)
	if len(ranked) == 0 || ranked[0].Score <= minScore {
		return Candidate{}, false
	}
	return ranked[0], true
}
