// Package event defines the append-only audit log entry written for every
// state transition in the core.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TypeAgentRegistered  Type = "agent.registered"
	TypeAgentUpdated     Type = "agent.capabilities_updated"
	TypeAgentDeactivated Type = "agent.deactivated"
	TypeAgentReactivated Type = "agent.reactivated"

	TypeTaskSubmitted   Type = "task.submitted"
	TypeTaskAssigned    Type = "task.assigned"
	TypeTaskReleased    Type = "task.released"
	TypeTaskStarted     Type = "task.started"
	TypeTaskProgress    Type = "task.progress"
	TypeTaskCompleted   Type = "task.completed"
	TypeTaskFailed      Type = "task.failed"
	TypeTaskResubmitted Type = "task.resubmitted"

	TypeVentureCreated  Type = "venture.created"
	TypeVentureAdvanced Type = "venture.advanced"
	TypeVentureStatus   Type = "venture.status"

	TypeSprintExecuted     Type = "sprint.executed"
	TypeConsensusCompleted Type = "consensus.completed"
)

// Event is a single immutable audit record.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	AgentID   string          `json:"agent_id,omitempty"`
	TaskID    string          `json:"task_id,omitempty"`
	VentureID string          `json:"venture_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	Type      Type       `json:"type,omitempty"`
	AgentID   string     `json:"agent_id,omitempty"`
	TaskID    string     `json:"task_id,omitempty"`
	VentureID string     `json:"venture_id,omitempty"`
	After     *time.Time `json:"after,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// Match reports whether e passes the filter. Limit is applied by the caller.
func (f *Filter) Match(e *Event) bool {
	switch {
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.AgentID != "" && e.AgentID != f.AgentID:
		return false
	case f.TaskID != "" && e.TaskID != f.TaskID:
		return false
	case f.VentureID != "" && e.VentureID != f.VentureID:
		return false
	case f.After != nil && !e.CreatedAt.After(*f.After):
		return false
	}
	return true
}
