package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aiarch/aia/internal/middleware"
)

// MountRoutes registers /health, /ws and the /api/v1 routes on r. The
// optional middlewares wrap the API group only, so health checks and the
// WebSocket upgrade bypass rate limiting and idempotency replay.
func MountRoutes(r chi.Router, h *Handlers, api ...func(http.Handler) http.Handler) {
	r.Get("/health", h.Health)
	if h.Hub != nil {
		r.Get("/ws", h.Hub.HandleWS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OperatorKey(h.OperatorKey))
		r.Use(api...)
		operator := r.With(middleware.RequireRole(middleware.RoleOperator))

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "1"})
		})

		// Agents
		r.Post("/agents/register", h.RegisterAgent)
		r.Get("/agents", h.ListAgents)
		r.Get("/agents/{id}", h.GetAgent)
		r.Patch("/agents/{id}/capabilities", h.UpdateCapabilities)
		r.Post("/agents/{id}/deactivate", h.DeactivateAgent)
		r.Post("/agents/{id}/reactivate", h.ReactivateAgent)

		// Tasks
		r.Post("/tasks/submit", h.SubmitTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", handleGet(h.Tasks.Get))
		r.Post("/tasks/{id}/start", h.StartTask)
		r.Post("/tasks/{id}/progress", h.ReportProgress)
		r.Post("/tasks/{id}/complete", h.CompleteTask)
		r.Post("/tasks/{id}/fail", h.FailTask)
		r.Post("/tasks/{id}/resubmit", h.ResubmitTask)

		// Ventures
		r.Post("/ventures/create", h.CreateVenture)
		r.Get("/ventures", handleList(h.Ventures.List))
		r.Get("/ventures/{id}", handleGet(h.Ventures.Get))
		r.Post("/ventures/{id}/advance", h.AdvanceVenture)
		r.Post("/ventures/{id}/hold", h.HoldVenture)
		r.Post("/ventures/{id}/resume", h.ResumeVenture)
		r.Post("/ventures/{id}/cancel", h.CancelVenture)

		// Economy
		r.Get("/economic/tokens", h.GetTokens)
		r.Get("/economic/ledger", h.GetLedger)
		r.Get("/economic/supply", h.GetSupply)
		operator.Post("/economic/distribute", h.DistributePeriod)
		operator.Post("/economic/grant", h.Grant)
		r.Post("/economic/transfer", h.Transfer)
		r.Post("/economic/stake", h.Stake)
		r.Post("/economic/unstake", h.Unstake)

		// Sprints
		operator.Post("/sprints/execute", h.ExecuteSprint)
		r.Get("/sprints", handleList(h.Sprints.List))
		r.Get("/sprints/{id}", handleGet(h.Sprints.Get))

		// Consensus
		r.Post("/consensus/validate", h.ValidateConsensus)

		// Knowledge graph
		r.Post("/dkg/nodes", h.RegisterNode)
		r.Post("/dkg/edges", h.AddEdge)
		r.Get("/dkg/query", h.QueryGraph)

		// Audit log
		r.Get("/events", h.ListEvents)
	})
}
