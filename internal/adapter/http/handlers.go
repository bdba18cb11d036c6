package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aiarch/aia/internal/adapter/ws"
	"github.com/aiarch/aia/internal/domain/event"
	"github.com/aiarch/aia/internal/port/database"
	"github.com/aiarch/aia/internal/port/messagequeue"
	"github.com/aiarch/aia/internal/service"
)

// Handlers holds the HTTP handler dependencies. Queue and Hub may be nil.
// OperatorKey yields the key guarding minting and sprint execution; nil or
// empty leaves them open.
type Handlers struct {
	Directory *service.DirectoryService
	Tasks     *service.OrchestratorService
	Economy   *service.EconomyService
	Ventures  *service.VentureService
	Sprints   *service.SprintService
	Consensus *service.ConsensusService
	Knowledge *service.KnowledgeService
	Store     database.Store
	Queue     messagequeue.Queue
	Hub       *ws.Hub

	OperatorKey func() string
}

type healthStatus struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	NATS      string `json:"nats"`
	WSClients int    `json:"ws_clients"`
}

// Health reports store and bus connectivity. A store failure turns the
// response into 503; a missing bus is reported but not fatal.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st := healthStatus{Status: "ok", Store: "ok", NATS: "disabled"}
	code := http.StatusOK
	if err := h.Store.Ping(ctx); err != nil {
		st.Status, st.Store = "degraded", err.Error()
		code = http.StatusServiceUnavailable
	}
	if h.Queue != nil {
		st.NATS = "connected"
		if !h.Queue.IsConnected() {
			st.NATS = "disconnected"
		}
	}
	if h.Hub != nil {
		st.WSClients = h.Hub.ConnectionCount()
	}
	writeJSON(w, code, st)
}

// ListEvents serves the audit log, newest last.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := event.Filter{
		Type:      event.Type(q.Get("type")),
		AgentID:   q.Get("agent_id"),
		TaskID:    q.Get("task_id"),
		VentureID: q.Get("venture_id"),
	}
	if raw := q.Get("after"); raw != "" {
		after, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp")
			return
		}
		filter.After = &after
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	events, err := h.Store.ListEvents(r.Context(), filter)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
