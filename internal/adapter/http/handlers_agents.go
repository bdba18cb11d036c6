package http

import (
	"net/http"

	"github.com/aiarch/aia/internal/domain/agent"
)

type registerResponse struct {
	Status  string       `json:"status"`
	AgentID string       `json:"agent_id"`
	Agent   *agent.Agent `json:"agent"`
}

// RegisterAgent handles POST /api/v1/agents/register.
func (h *Handlers) RegisterAgent(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[agent.RegisterRequest](w, r)
	if !ok {
		return
	}
	a, err := h.Directory.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{Status: "registered", AgentID: a.ID, Agent: a})
}

// ListAgents handles GET /api/v1/agents?status=&skill=&min_level=.
func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	minLevel, ok := queryFloat(w, r, "min_level")
	if !ok {
		return
	}
	filter := agent.Filter{
		Status:   agent.Status(r.URL.Query().Get("status")),
		Skill:    r.URL.Query().Get("skill"),
		MinLevel: minLevel,
	}
	agents := []agent.Agent{}
	for a := range h.Directory.List(r.Context(), filter) {
		agents = append(agents, a)
	}
	writeJSON(w, http.StatusOK, agents)
}

// GetAgent handles GET /api/v1/agents/{id}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := h.Directory.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// UpdateCapabilities handles PATCH /api/v1/agents/{id}/capabilities. The
// body is a skill -> level delta merged into the agent's capabilities.
func (h *Handlers) UpdateCapabilities(w http.ResponseWriter, r *http.Request) {
	delta, ok := readJSON[agent.Capabilities](w, r)
	if !ok {
		return
	}
	if len(delta) == 0 {
		writeError(w, http.StatusBadRequest, "capabilities are required")
		return
	}
	a, err := h.Directory.UpdateCapabilities(r.Context(), urlParam(r, "id"), delta)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DeactivateAgent handles POST /api/v1/agents/{id}/deactivate.
func (h *Handlers) DeactivateAgent(w http.ResponseWriter, r *http.Request) {
	handleAction(w, r, h.Directory.Deactivate)
}

// ReactivateAgent handles POST /api/v1/agents/{id}/reactivate.
func (h *Handlers) ReactivateAgent(w http.ResponseWriter, r *http.Request) {
	handleAction(w, r, h.Directory.Reactivate)
}
