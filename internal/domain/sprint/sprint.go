// Package sprint defines the ranked redistribution performed at the end of
// each performance sprint.
package sprint

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/domain"
)

// Tier is an agent's band in the sprint ranking.
type Tier string

const (
	TierTop    Tier = "top"
	TierMiddle Tier = "middle"
	TierBottom Tier = "bottom"
)

// AmountPlaces is the number of decimal places bonus shares are rounded to.
const AmountPlaces = 8

// Ranked is one scored agent in ranking order.
type Ranked struct {
	AgentID string  `json:"agent_id"`
	Score   float64 `json:"score"`
	Tier    Tier    `json:"tier"`
}

// Allotment is an amount moved for one agent.
type Allotment struct {
	AgentID string          `json:"agent_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// Record is the immutable outcome of one sprint.
type Record struct {
	ID            string          `json:"sprint_id"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	Ranking       []Ranked        `json:"ranking"`
	Forfeited     []Allotment     `json:"forfeited"`
	PoolTotal     decimal.Decimal `json:"pool_total"`
	NewHireAmount decimal.Decimal `json:"new_hire_amount"`
	BonusAmount   decimal.Decimal `json:"bonus_amount"`
	Bonuses       []Allotment     `json:"bonuses"`
	Promoted      []string        `json:"promoted"`
	Deactivated   []string        `json:"deactivated"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Overlaps reports whether [start, end) intersects the record's window.
func (r *Record) Overlaps(start, end time.Time) bool {
	return start.Before(r.End) && r.Start.Before(end)
}

// Tier returns the agents of one tier in ranking order.
func (r *Record) Tier(t Tier) []Ranked {
	var out []Ranked
	for _, x := range r.Ranking {
		if x.Tier == t {
			out = append(out, x)
		}
	}
	return out
}

// Request is the input of a sprint execution.
type Request struct {
	ID     string             `json:"sprint_id"`
	Start  time.Time          `json:"start"`
	End    time.Time          `json:"end"`
	Scores map[string]float64 `json:"scores"`
}

// Validate checks a Request.
func (r *Request) Validate() error {
	if r.ID == "" {
		return domain.Validationf("sprint_id is required")
	}
	if len(r.Scores) == 0 {
		return domain.Validationf("scores must not be empty")
	}
	if !r.End.After(r.Start) {
		return domain.Validationf("end %s must be after start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	for id, s := range r.Scores {
		if id == "" {
			return domain.Validationf("score agent id is required")
		}
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return domain.Validationf("score for %s is not finite", id)
		}
	}
	return nil
}

// TierSizes returns how many agents fall in the top and bottom tiers of a
// population of n. Each extreme tier holds at least one agent when n > 0,
// and the bottom tier never overlaps the top.
func TierSizes(n, topPct, bottomPct int) (top, bottom int) {
	if n <= 0 {
		return 0, 0
	}
	top = max(1, n*topPct/100)
	bottom = max(1, n*bottomPct/100)
	top = min(top, n)
	bottom = min(bottom, n-top)
	return top, bottom
}

// Rank orders scores descending with ties broken by agent id ascending and
// assigns tiers.
func Rank(scores map[string]float64, topPct, bottomPct int) []Ranked {
	out := make([]Ranked, 0, len(scores))
	for id, s := range scores {
		out = append(out, Ranked{AgentID: id, Score: s, Tier: TierMiddle})
	}
	slices.SortFunc(out, func(a, b Ranked) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	top, bottom := TierSizes(len(out), topPct, bottomPct)
	for i := range top {
		out[i].Tier = TierTop
	}
	for i := len(out) - bottom; i < len(out); i++ {
		out[i].Tier = TierBottom
	}
	return out
}

// SplitPool divides pool into the new-hire share (newHirePct percent) and
// the bonus remainder. The two parts always sum to pool.
func SplitPool(pool decimal.Decimal, newHirePct int) (newHire, bonus decimal.Decimal) {
	newHire = pool.Mul(decimal.NewFromInt(int64(newHirePct))).Div(decimal.NewFromInt(100)).Round(AmountPlaces)
	return newHire, pool.Sub(newHire)
}

// SplitBonus shares bonus across top agents in proportion to score, with
// negative scores weighted as zero. When no top score is positive the bonus
// is shared equally. Shares are truncated to AmountPlaces and the last
// recipient absorbs the remainder, so every share is non-negative and the
// shares sum to bonus exactly.
func SplitBonus(bonus decimal.Decimal, top []Ranked) []Allotment {
	if len(top) == 0 {
		return nil
	}
	var sum float64
	for _, r := range top {
		sum += max(r.Score, 0)
	}

	out := make([]Allotment, len(top))
	paid := decimal.Zero
	for i, r := range top {
		out[i].AgentID = r.AgentID
		if i == len(top)-1 {
			out[i].Amount = bonus.Sub(paid)
			break
		}
		var share decimal.Decimal
		if sum > 0 {
			share = bonus.Mul(decimal.NewFromFloat(max(r.Score, 0))).Div(decimal.NewFromFloat(sum))
		} else {
			share = bonus.Div(decimal.NewFromInt(int64(len(top))))
		}
		out[i].Amount = share.Truncate(AmountPlaces)
		paid = paid.Add(out[i].Amount)
	}
	return out
}
