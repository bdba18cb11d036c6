package http

import (
	"net/http"

	aiaotel "github.com/aiarch/aia/internal/adapter/otel"
	"github.com/aiarch/aia/internal/domain/consensus"
	"github.com/aiarch/aia/internal/domain/sprint"
)

// ExecuteSprint handles POST /api/v1/sprints/execute.
func (h *Handlers) ExecuteSprint(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[sprint.Request](w, r)
	if !ok {
		return
	}
	ctx, span := aiaotel.StartSprintSpan(r.Context(), req.ID, len(req.Scores))
	rec, err := h.Sprints.Execute(ctx, req)
	aiaotel.End(span, err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ValidateConsensus handles POST /api/v1/consensus/validate.
func (h *Handlers) ValidateConsensus(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[consensus.Request](w, r)
	if !ok {
		return
	}
	ctx, span := aiaotel.StartConsensusSpan(r.Context(), len(req.AgentIDs))
	res, err := h.Consensus.ValidateCritical(ctx, req)
	aiaotel.End(span, err)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
