package messagequeue

import "time"

// TaskEventPayload is the schema for tasks.assigned, tasks.completed and
// tasks.failed messages.
type TaskEventPayload struct {
	TaskID     string            `json:"task_id"`
	AgentID    string            `json:"agent_id"`
	Status     string            `json:"status"`
	Priority   string            `json:"priority"`
	VentureID  string            `json:"venture_id,omitempty"`
	Phase      string            `json:"phase,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Result     map[string]string `json:"result,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// ProvisionPayload is the schema for agents.provision messages, emitted
// after a sprint deactivates under-performers.
type ProvisionPayload struct {
	SprintID     string `json:"sprint_id"`
	Replacements int    `json:"replacements"`
	Budget       string `json:"budget"` // decimal string
}

// ValidateRequestPayload is sent to consensus.validate.{agent_id}.
type ValidateRequestPayload struct {
	AgentID string `json:"agent_id"`
	Output  string `json:"output"`
}

// ValidateReplyPayload is an agent's answer to a validation request.
// An empty Decision is an abstention.
type ValidateReplyPayload struct {
	Decision   string  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}
