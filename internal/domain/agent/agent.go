// Package agent defines the Agent domain entity.
package agent

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/aiarch/aia/internal/domain"
)

// Status represents the current availability of an agent.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Rank is an agent's seniority, raised by sprint performance.
type Rank string

const (
	RankEntry     Rank = "entry"
	RankJunior    Rank = "junior"
	RankMid       Rank = "mid"
	RankSenior    Rank = "senior"
	RankExecutive Rank = "executive"
)

var rankOrder = []Rank{RankEntry, RankJunior, RankMid, RankSenior, RankExecutive}

// Promote returns the next rank up, or r itself at the top.
func (r Rank) Promote() Rank {
	for i, x := range rankOrder {
		if x == r && i+1 < len(rankOrder) {
			return rankOrder[i+1]
		}
	}
	return r
}

// Valid reports whether r is a known rank.
func (r Rank) Valid() bool {
	for _, x := range rankOrder {
		if x == r {
			return true
		}
	}
	return false
}

// Capabilities maps a skill name to a proficiency in [0,1].
type Capabilities map[string]float64

// Validate checks every proficiency is within [0,1].
func (c Capabilities) Validate() error {
	for skill, level := range c {
		if skill == "" {
			return domain.Validationf("capability name is required")
		}
		// NaN fails both comparisons, so test the accepted range directly.
		if !(level >= 0 && level <= 1) {
			return domain.Validationf("capability %q: %v outside [0,1]", skill, level)
		}
	}
	return nil
}

// Merge returns a copy of c with every entry of delta applied on top.
func (c Capabilities) Merge(delta Capabilities) Capabilities {
	out := make(Capabilities, len(c)+len(delta))
	maps.Copy(out, c)
	maps.Copy(out, delta)
	return out
}

// Agent is an autonomous worker matched to tasks by capability.
type Agent struct {
	ID                 string       `json:"id"`
	Name               string       `json:"name"`
	Capabilities       Capabilities `json:"capabilities"`
	Status             Status       `json:"status"`
	Rank               Rank         `json:"rank"`
	PerformanceHistory []float64    `json:"performance_history"`
	Version            int          `json:"version"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (a *Agent) Clone() *Agent {
	c := *a
	c.Capabilities = maps.Clone(a.Capabilities)
	c.PerformanceHistory = append([]float64(nil), a.PerformanceHistory...)
	return &c
}

// ReservedPrefix marks ledger owners that are not agents, such as the
// sprint pools.
const ReservedPrefix = "pool:"

// RegisterRequest holds the fields needed to register a new agent.
type RegisterRequest struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Validate checks that a RegisterRequest is well-formed.
func (r *RegisterRequest) Validate() error {
	if r.ID == "" {
		return domain.Validationf("agent id is required")
	}
	if strings.HasPrefix(r.ID, ReservedPrefix) {
		return domain.Validationf("agent id %q uses reserved prefix %q", r.ID, ReservedPrefix)
	}
	if r.Name == "" {
		return domain.Validationf("agent name is required")
	}
	if err := r.Capabilities.Validate(); err != nil {
		return fmt.Errorf("agent %s: %w", r.ID, err)
	}
	return nil
}

// Filter narrows a directory listing. Zero values match everything.
type Filter struct {
	Status   Status  `json:"status,omitempty"`
	Skill    string  `json:"skill,omitempty"`
	MinLevel float64 `json:"min_level,omitempty"`
}

// Match reports whether a satisfies the filter.
func (f Filter) Match(a *Agent) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Skill != "" {
		level, ok := a.Capabilities[f.Skill]
		if !ok || level < f.MinLevel {
			return false
		}
	}
	return true
}
