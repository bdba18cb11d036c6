// Package consensus tallies independent validation decisions from agents.
package consensus

import (
	"cmp"
	"slices"

	"github.com/aiarch/aia/internal/domain"
)

// DefaultThreshold is the share of votes a decision needs to be accepted.
const DefaultThreshold = 2.0 / 3.0

// Vote is one agent's decision. An empty Decision is an abstention.
type Vote struct {
	AgentID    string  `json:"agent_id"`
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// Request asks a set of agents to validate one output.
type Request struct {
	Output   string   `json:"output"`
	AgentIDs []string `json:"agent_ids"`
}

// Validate checks a Request.
func (r *Request) Validate() error {
	if len(r.AgentIDs) == 0 {
		return domain.Validationf("agent_ids must not be empty")
	}
	seen := make(map[string]bool, len(r.AgentIDs))
	for _, id := range r.AgentIDs {
		if id == "" {
			return domain.Validationf("agent id is required")
		}
		if seen[id] {
			return domain.Validationf("duplicate agent id %s", id)
		}
		seen[id] = true
	}
	return nil
}

// Result is the outcome of a tally. Falling short of the threshold is a
// normal result, not an error.
type Result struct {
	Reached    bool           `json:"consensus_reached"`
	Decision   string         `json:"decision"`
	Confidence float64        `json:"confidence"`
	Votes      map[string]int `json:"votes"`
	Dissenting []string       `json:"dissenting_agents"`
}

// Tally counts votes. Every vote counts toward the total, abstentions
// included. The leading decision is the one with most votes, ties going to
// the lexically smaller decision; it is accepted when its share of the
// total reaches threshold. Confidence is the mean confidence of the agents
// backing the leading decision scaled by its vote share.
func Tally(votes []Vote, threshold float64) Result {
	res := Result{Votes: make(map[string]int)}
	if len(votes) == 0 {
		return res
	}
	for _, v := range votes {
		if v.Decision != "" {
			res.Votes[v.Decision]++
		}
	}

	best := 0
	for d, n := range res.Votes {
		if n > best || (n == best && d < res.Decision) {
			res.Decision, best = d, n
		}
	}

	var conf float64
	for _, v := range votes {
		if v.Decision == res.Decision && res.Decision != "" {
			conf += v.Confidence
		} else {
			res.Dissenting = append(res.Dissenting, v.AgentID)
		}
	}
	slices.SortFunc(res.Dissenting, cmp.Compare[string])

	share := float64(best) / float64(len(votes))
	if best > 0 {
		res.Confidence = conf / float64(best) * share
	}
	// Tolerate float error so that 2 of 3 meets a 2/3 threshold.
	res.Reached = best > 0 && share >= threshold-1e-9
	return res
}
