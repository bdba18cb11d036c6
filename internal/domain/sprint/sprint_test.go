package sprint_test

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/domain"
	"github.com/aiarch/aia/internal/domain/sprint"
)

func TestTierSizes(t *testing.T) {
	tests := []struct {
		n, top, bottom int
	}{
		{0, 0, 0},
		{1, 1, 0},
		{2, 1, 1},
		{5, 1, 1},
		{10, 2, 1},
		{25, 5, 2},
		{100, 20, 10},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			top, bottom := sprint.TierSizes(tt.n, 20, 10)
			if top != tt.top || bottom != tt.bottom {
				t.Fatalf("TierSizes(%d) = (%d, %d), want (%d, %d)", tt.n, top, bottom, tt.top, tt.bottom)
			}
		})
	}
}

func TestRankTenAgents(t *testing.T) {
	scores := make(map[string]float64)
	for i := 1; i <= 10; i++ {
		scores[fmt.Sprintf("a%02d", i)] = float64(i)
	}
	ranked := sprint.Rank(scores, 20, 10)

	if ranked[0].AgentID != "a10" || ranked[1].AgentID != "a09" {
		t.Fatalf("unexpected top order: %v, %v", ranked[0], ranked[1])
	}
	counts := map[sprint.Tier]int{}
	for _, r := range ranked {
		counts[r.Tier]++
	}
	if counts[sprint.TierTop] != 2 || counts[sprint.TierBottom] != 1 || counts[sprint.TierMiddle] != 7 {
		t.Fatalf("unexpected tier counts: %v", counts)
	}
	if last := ranked[9]; last.AgentID != "a01" || last.Tier != sprint.TierBottom {
		t.Fatalf("bottom = %+v, want a01", last)
	}
}

func TestRankTieBreakByID(t *testing.T) {
	ranked := sprint.Rank(map[string]float64{"c": 1, "a": 1, "b": 1}, 20, 10)
	for i, want := range []string{"a", "b", "c"} {
		if ranked[i].AgentID != want {
			t.Fatalf("position %d = %s, want %s", i, ranked[i].AgentID, want)
		}
	}
}

func TestSplitPoolConserves(t *testing.T) {
	pool := decimal.RequireFromString("123.45")
	newHire, bonus := sprint.SplitPool(pool, 80)
	if !newHire.Equal(decimal.RequireFromString("98.76")) {
		t.Fatalf("new hire = %s", newHire)
	}
	if !newHire.Add(bonus).Equal(pool) {
		t.Fatalf("%s + %s != %s", newHire, bonus, pool)
	}
}

func TestSplitBonusProportional(t *testing.T) {
	bonus := decimal.NewFromInt(20)
	top := []sprint.Ranked{{AgentID: "a10", Score: 10}, {AgentID: "a09", Score: 9}}
	shares := sprint.SplitBonus(bonus, top)

	want := map[string]float64{"a10": 20.0 * 10 / 19, "a09": 20.0 * 9 / 19}
	sum := decimal.Zero
	for _, s := range shares {
		got := s.Amount.InexactFloat64()
		if math.Abs(got-want[s.AgentID]) > 1e-6 {
			t.Errorf("%s got %v, want %v", s.AgentID, got, want[s.AgentID])
		}
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(bonus) {
		t.Fatalf("shares sum to %s, want %s", sum, bonus)
	}
}

func TestSplitBonusEqualWhenScoresNotPositive(t *testing.T) {
	shares := sprint.SplitBonus(decimal.NewFromInt(10), []sprint.Ranked{
		{AgentID: "a", Score: 0}, {AgentID: "b", Score: 0}, {AgentID: "c", Score: 0},
	})
	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s.Amount)
	}
	if !sum.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("shares sum to %s", sum)
	}
	if !shares[0].Amount.Equal(shares[1].Amount) {
		t.Fatalf("expected equal shares, got %s and %s", shares[0].Amount, shares[1].Amount)
	}
}

func TestSplitBonusIgnoresNegativeScores(t *testing.T) {
	tests := []struct {
		name string
		top  []sprint.Ranked
		want map[string]string
	}{
		{"one negative", []sprint.Ranked{{AgentID: "a", Score: 5}, {AgentID: "b", Score: -2}},
			map[string]string{"a": "16", "b": "0"}},
		{"negative first", []sprint.Ranked{{AgentID: "a", Score: -1}, {AgentID: "b", Score: 3}},
			map[string]string{"a": "0", "b": "16"}},
		{"all negative", []sprint.Ranked{{AgentID: "a", Score: -1}, {AgentID: "b", Score: -3}},
			map[string]string{"a": "8", "b": "8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bonus := decimal.NewFromInt(16)
			sum := decimal.Zero
			for _, s := range sprint.SplitBonus(bonus, tt.top) {
				if s.Amount.IsNegative() {
					t.Fatalf("%s got negative share %s", s.AgentID, s.Amount)
				}
				if !s.Amount.Equal(decimal.RequireFromString(tt.want[s.AgentID])) {
					t.Errorf("%s got %s, want %s", s.AgentID, s.Amount, tt.want[s.AgentID])
				}
				sum = sum.Add(s.Amount)
			}
			if !sum.Equal(bonus) {
				t.Fatalf("shares sum to %s, want %s", sum, bonus)
			}
		})
	}
}

func TestSplitBonusRemainderNeverNegative(t *testing.T) {
	// Two thirds truncate down, so the zero-weighted last recipient keeps
	// the dust instead of owing it.
	shares := sprint.SplitBonus(decimal.NewFromInt(2), []sprint.Ranked{
		{AgentID: "a", Score: 1}, {AgentID: "b", Score: 1}, {AgentID: "c", Score: 1}, {AgentID: "d", Score: 0},
	})
	for _, s := range shares {
		if s.Amount.IsNegative() {
			t.Fatalf("%s got negative share %s", s.AgentID, s.Amount)
		}
	}
}

func TestRequestValidate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(14 * 24 * time.Hour)
	tests := []struct {
		name string
		req  sprint.Request
	}{
		{"no id", sprint.Request{Start: start, End: end, Scores: map[string]float64{"a": 1}}},
		{"no scores", sprint.Request{ID: "s1", Start: start, End: end}},
		{"end before start", sprint.Request{ID: "s1", Start: end, End: start, Scores: map[string]float64{"a": 1}}},
		{"nan score", sprint.Request{ID: "s1", Start: start, End: end, Scores: map[string]float64{"a": math.NaN()}}},
		{"inf score", sprint.Request{ID: "s1", Start: start, End: end, Scores: map[string]float64{"a": math.Inf(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.req.Validate(); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestOverlaps(t *testing.T) {
	day := 24 * time.Hour
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := sprint.Record{Start: base, End: base.Add(14 * day)}

	if !r.Overlaps(base.Add(13*day), base.Add(20*day)) {
		t.Error("expected overlap")
	}
	if r.Overlaps(base.Add(14*day), base.Add(28*day)) {
		t.Error("adjacent windows must not overlap")
	}
}
