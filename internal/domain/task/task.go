// Package task defines the Task domain entity and its lifecycle.
package task

import (
	"maps"
	"time"

	"github.com/aiarch/aia/internal/domain"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal returns true if the task is in a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// HoldsAgent reports whether a task in this state carries an assignee.
func (s Status) HoldsAgent() bool {
	return s == StatusAssigned || s == StatusInProgress || s == StatusCompleted
}

// Priority orders pending work and selects the completion reward.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Weight returns a sortable weight; higher is more urgent.
func (p Priority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	}
	return 0
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool { return p.Weight() > 0 }

// Requirements maps a skill name to the minimum proficiency needed.
type Requirements map[string]float64

// Validate checks requirements are non-empty and every level is in [0,1].
func (r Requirements) Validate() error {
	if len(r) == 0 {
		return domain.Validationf("requirements must not be empty")
	}
	for skill, level := range r {
		if skill == "" {
			return domain.Validationf("requirement skill name is required")
		}
		if !(level >= 0 && level <= 1) {
			return domain.Validationf("requirement %q: %v outside [0,1]", skill, level)
		}
	}
	return nil
}

// Task is a unit of work matched to an agent by capability.
type Task struct {
	ID              string            `json:"id"`
	Description     string            `json:"description"`
	Requirements    Requirements      `json:"requirements"`
	Status          Status            `json:"status"`
	AssignedTo      *string           `json:"assigned_to"`
	Priority        Priority          `json:"priority"`
	Deadline        *time.Time        `json:"deadline,omitempty"`
	Progress        float64           `json:"progress"`
	VentureID       string            `json:"venture_id,omitempty"`
	Phase           string            `json:"phase,omitempty"`
	ResubmittedFrom string            `json:"resubmitted_from,omitempty"`
	Result          map[string]string `json:"result,omitempty"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	Version         int               `json:"version"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Assignee returns the assigned agent id, or "" when unassigned.
func (t *Task) Assignee() string {
	if t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	c := *t
	c.Requirements = maps.Clone(t.Requirements)
	c.Result = maps.Clone(t.Result)
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		c.AssignedTo = &id
	}
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	return &c
}

// Assign moves a pending task to assigned.
func (t *Task) Assign(agentID string) error {
	if t.Status != StatusPending {
		return domain.Conflictf("task %s is %s, not pending", t.ID, t.Status)
	}
	t.Status = StatusAssigned
	t.AssignedTo = &agentID
	return nil
}

// Release returns an assigned task to the pending queue.
func (t *Task) Release() error {
	if t.Status != StatusAssigned {
		return domain.Conflictf("task %s is %s, not assigned", t.ID, t.Status)
	}
	t.Status = StatusPending
	t.AssignedTo = nil
	return nil
}

// Start moves an assigned task to in_progress.
func (t *Task) Start() error {
	if t.Status != StatusAssigned {
		return domain.Conflictf("task %s is %s, not assigned", t.ID, t.Status)
	}
	t.Status = StatusInProgress
	return nil
}

// Complete moves an in_progress task to completed.
func (t *Task) Complete(result map[string]string) error {
	if t.Status != StatusInProgress {
		return domain.Conflictf("task %s is %s, not in_progress", t.ID, t.Status)
	}
	t.Status = StatusCompleted
	t.Progress = 1
	t.Result = maps.Clone(result)
	return nil
}

// Fail moves an in_progress task to failed. The assignee is cleared since
// failed tasks never hold an agent.
func (t *Task) Fail(reason string) error {
	if t.Status != StatusInProgress {
		return domain.Conflictf("task %s is %s, not in_progress", t.ID, t.Status)
	}
	t.Status = StatusFailed
	t.FailureReason = reason
	t.AssignedTo = nil
	return nil
}

// SubmitRequest holds the fields needed to submit a new task.
type SubmitRequest struct {
	ID              string       `json:"id,omitempty"`
	Description     string       `json:"description"`
	Requirements    Requirements `json:"requirements"`
	Priority        Priority     `json:"priority"`
	Deadline        *time.Time   `json:"deadline,omitempty"`
	VentureID       string       `json:"-"`
	Phase           string       `json:"-"`
	ResubmittedFrom string       `json:"-"`
}

// Validate checks a SubmitRequest and applies the default priority.
func (r *SubmitRequest) Validate() error {
	if r.Description == "" {
		return domain.Validationf("description is required")
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if !r.Priority.Valid() {
		return domain.Validationf("invalid priority %q", r.Priority)
	}
	return r.Requirements.Validate()
}

// Filter narrows a task listing. Zero values match everything.
type Filter struct {
	Status     Status `json:"status,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`
	VentureID  string `json:"venture_id,omitempty"`
}

// Match reports whether t satisfies the filter.
func (f Filter) Match(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && t.Assignee() != f.AssignedTo {
		return false
	}
	if f.VentureID != "" && t.VentureID != f.VentureID {
		return false
	}
	return true
}
