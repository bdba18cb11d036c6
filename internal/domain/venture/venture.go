// Package venture defines budgeted, timed projects that run through a
// fixed five-phase lifecycle.
package venture

import (
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/domain"
)

// Phase is one step of the fixed venture lifecycle.
type Phase string

const (
	PhaseIdeation    Phase = "ideation"
	PhaseValidation  Phase = "validation"
	PhaseDesign      Phase = "design"
	PhaseDevelopment Phase = "development"
	PhaseLaunch      Phase = "launch"
)

// Phases is the declared execution order. Phases never run out of order.
var Phases = []Phase{PhaseIdeation, PhaseValidation, PhaseDesign, PhaseDevelopment, PhaseLaunch}

// Status represents the lifecycle state of a venture.
type Status string

const (
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the venture is in a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PhasePlan is the allocation and task set of one phase.
type PhasePlan struct {
	Phase   Phase           `json:"phase"`
	Days    int             `json:"days"`
	Budget  decimal.Decimal `json:"budget"`
	TaskIDs []string        `json:"task_ids"`
}

// Venture is a named project constrained by budget and timeline.
type Venture struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Budget       decimal.Decimal `json:"budget"`
	TimelineDays int             `json:"timeline_days"`
	Phases       []PhasePlan     `json:"phases"`
	CurrentPhase int             `json:"current_phase"`
	Status       Status          `json:"status"`
	Version      int             `json:"version"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Current returns the plan of the phase being executed.
func (v *Venture) Current() *PhasePlan {
	return &v.Phases[v.CurrentPhase]
}

// TaskCount returns the number of tasks across every phase.
func (v *Venture) TaskCount() int {
	n := 0
	for i := range v.Phases {
		n += len(v.Phases[i].TaskIDs)
	}
	return n
}

// Clone returns a deep copy of v.
func (v *Venture) Clone() *Venture {
	c := *v
	c.Phases = make([]PhasePlan, len(v.Phases))
	for i, p := range v.Phases {
		p.TaskIDs = slices.Clone(p.TaskIDs)
		c.Phases[i] = p
	}
	return &c
}

// Advance moves to the next phase, or completes the venture after the last.
func (v *Venture) Advance() {
	if v.CurrentPhase+1 < len(v.Phases) {
		v.CurrentPhase++
		return
	}
	v.Status = StatusCompleted
}

// CreateRequest holds the fields needed to create a venture.
type CreateRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Budget       decimal.Decimal `json:"budget"`
	TimelineDays int             `json:"timeline_days"`
}

// Validate checks a CreateRequest.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return domain.Validationf("venture name is required")
	}
	if !r.Budget.IsPositive() {
		return domain.Validationf("budget must be > 0, got %s", r.Budget)
	}
	if r.TimelineDays <= 0 {
		return domain.Validationf("timeline_days must be > 0, got %d", r.TimelineDays)
	}
	return nil
}

// Allocation is the days and budget assigned to one phase.
type Allocation struct {
	Phase  Phase
	Days   int
	Budget decimal.Decimal
}

// Allocate splits days and budget across Phases by weight. Every phase
// except development is rounded (half away from zero); development takes
// the remainder so the totals are exact. Missing weights count as zero.
func Allocate(days int, budget decimal.Decimal, weights map[Phase]float64) []Allocation {
	out := make([]Allocation, len(Phases))
	usedDays := 0
	usedBudget := decimal.Zero
	dev := 0
	for i, p := range Phases {
		out[i].Phase = p
		if p == PhaseDevelopment {
			dev = i
			continue
		}
		w := weights[p]
		out[i].Days = int(math.Round(float64(days) * w))
		out[i].Budget = budget.Mul(decimal.NewFromFloat(w)).Round(2)
		usedDays += out[i].Days
		usedBudget = usedBudget.Add(out[i].Budget)
	}
	out[dev].Days = days - usedDays
	out[dev].Budget = budget.Sub(usedBudget)
	return out
}

// TasksForDays returns how many tasks a phase of the given length gets:
// one per daysPerTask, at least one.
func TasksForDays(days, daysPerTask int) int {
	if daysPerTask <= 0 {
		return 1
	}
	return max(1, (days+daysPerTask-1)/daysPerTask)
}
