package http

import (
	"net/http"

	"github.com/aiarch/aia/internal/domain/task"
)

type submitResponse struct {
	TaskID     string      `json:"task_id"`
	Status     task.Status `json:"status"`
	AssignedTo *string     `json:"assigned_to"`
}

// SubmitTask handles POST /api/v1/tasks/submit.
func (h *Handlers) SubmitTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[task.SubmitRequest](w, r)
	if !ok {
		return
	}
	t, err := h.Tasks.Submit(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{TaskID: t.ID, Status: t.Status, AssignedTo: t.AssignedTo})
}

// ListTasks handles GET /api/v1/tasks?status=&assigned_to=&venture_id=.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.Tasks.List(r.Context(), task.Filter{
		Status:     task.Status(q.Get("status")),
		AssignedTo: q.Get("assigned_to"),
		VentureID:  q.Get("venture_id"),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// StartTask handles POST /api/v1/tasks/{id}/start.
func (h *Handlers) StartTask(w http.ResponseWriter, r *http.Request) {
	handleAction(w, r, h.Tasks.Start)
}

// ReportProgress handles POST /api/v1/tasks/{id}/progress.
func (h *Handlers) ReportProgress(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Progress *float64 `json:"progress"`
	}](w, r)
	if !ok {
		return
	}
	if req.Progress == nil {
		writeError(w, http.StatusBadRequest, "progress is required")
		return
	}
	t, err := h.Tasks.ReportProgress(r.Context(), urlParam(r, "id"), *req.Progress)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CompleteTask handles POST /api/v1/tasks/{id}/complete.
func (h *Handlers) CompleteTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Result map[string]string `json:"result"`
	}](w, r)
	if !ok {
		return
	}
	t, err := h.Tasks.Complete(r.Context(), urlParam(r, "id"), req.Result)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// FailTask handles POST /api/v1/tasks/{id}/fail.
func (h *Handlers) FailTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Reason string `json:"reason"`
	}](w, r)
	if !ok || !requireField(w, req.Reason, "reason") {
		return
	}
	t, err := h.Tasks.Fail(r.Context(), urlParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ResubmitTask handles POST /api/v1/tasks/{id}/resubmit. The failed task
// stays as history; the response is the new task.
func (h *Handlers) ResubmitTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Resubmit(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}
