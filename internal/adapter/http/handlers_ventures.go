package http

import (
	"net/http"

	"github.com/aiarch/aia/internal/domain/venture"
)

type createVentureResponse struct {
	VentureID    string              `json:"venture_id"`
	Phases       []venture.PhasePlan `json:"phases"`
	TasksCreated int                 `json:"tasks_created"`
	Venture      *venture.Venture    `json:"venture"`
}

// CreateVenture handles POST /api/v1/ventures/create.
func (h *Handlers) CreateVenture(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[venture.CreateRequest](w, r)
	if !ok {
		return
	}
	res, err := h.Ventures.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createVentureResponse{
		VentureID:    res.Venture.ID,
		Phases:       res.Venture.Phases,
		TasksCreated: res.TasksCreated,
		Venture:      res.Venture,
	})
}

// AdvanceVenture handles POST /api/v1/ventures/{id}/advance.
func (h *Handlers) AdvanceVenture(w http.ResponseWriter, r *http.Request) {
	handleAction(w, r, h.Ventures.AdvancePhase)
}

// HoldVenture handles POST /api/v1/ventures/{id}/hold.
func (h *Handlers) HoldVenture(w http.ResponseWriter, r *http.Request) {
	handleAction(w, r, h.Ventures.Hold)
}

// ResumeVenture handles POST /api/v1/ventures/{id}/resume.
func (h *Handlers) ResumeVenture(w http.ResponseWriter, r *http.Request) {
	handleAction(w, r, h.Ventures.Resume)
}

// CancelVenture handles POST /api/v1/ventures/{id}/cancel.
func (h *Handlers) CancelVenture(w http.ResponseWriter, r *http.Request) {
	handleAction(w, r, h.Ventures.Cancel)
}
