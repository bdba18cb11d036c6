package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/aiarch/aia/internal/domain/economy"
)

type movementRequest struct {
	AgentID string          `json:"agent_id"`
	From    string          `json:"from"`
	To      string          `json:"to"`
	Amount  decimal.Decimal `json:"amount"`
	Token   economy.Token   `json:"token"`
	Reason  string          `json:"reason"`
}

func (m *movementRequest) token() economy.Token {
	if m.Token == "" {
		return economy.TokenUtility
	}
	return m.Token
}

// GetTokens handles GET /api/v1/economic/tokens?agent_id=.
func (h *Handlers) GetTokens(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("agent_id")
	if !requireField(w, id, "agent_id") {
		return
	}
	b, err := h.Economy.Balance(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DistributePeriod handles POST /api/v1/economic/distribute.
func (h *Handlers) DistributePeriod(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Type   string `json:"distribution_type"`
		Period string `json:"period"`
	}](w, r)
	if !ok || !requireField(w, req.Type, "distribution_type") || !requireField(w, req.Period, "period") {
		return
	}
	res, err := h.Economy.DistributePeriod(r.Context(), req.Type, req.Period)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Grant handles POST /api/v1/economic/grant, minting tokens to one agent.
func (h *Handlers) Grant(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[movementRequest](w, r)
	if !ok || !requireField(w, req.AgentID, "agent_id") {
		return
	}
	b, err := h.Economy.Distribute(r.Context(), req.AgentID, req.Amount, req.token(), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Transfer handles POST /api/v1/economic/transfer.
func (h *Handlers) Transfer(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[movementRequest](w, r)
	if !ok || !requireField(w, req.From, "from") || !requireField(w, req.To, "to") {
		return
	}
	if err := h.Economy.Transfer(r.Context(), req.From, req.To, req.Amount, req.token(), req.Reason); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred"})
}

// Stake handles POST /api/v1/economic/stake.
func (h *Handlers) Stake(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[movementRequest](w, r)
	if !ok || !requireField(w, req.AgentID, "agent_id") {
		return
	}
	b, err := h.Economy.Stake(r.Context(), req.AgentID, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Unstake handles POST /api/v1/economic/unstake.
func (h *Handlers) Unstake(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[movementRequest](w, r)
	if !ok || !requireField(w, req.AgentID, "agent_id") {
		return
	}
	b, err := h.Economy.Unstake(r.Context(), req.AgentID, req.Amount)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetLedger handles GET /api/v1/economic/ledger?agent_id=.
func (h *Handlers) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("agent_id")
	if !requireField(w, id, "agent_id") {
		return
	}
	entries, err := h.Economy.Ledger(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []economy.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetSupply handles GET /api/v1/economic/supply.
func (h *Handlers) GetSupply(w http.ResponseWriter, r *http.Request) {
	sup, err := h.Economy.Supply(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}
