package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/aiarch/aia/internal/domain/knowledge"
)

// RegisterNode handles POST /api/v1/dkg/nodes.
func (h *Handlers) RegisterNode(w http.ResponseWriter, r *http.Request) {
	n, ok := readJSON[knowledge.Node](w, r)
	if !ok {
		return
	}
	created, err := h.Knowledge.RegisterNode(r.Context(), n)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// AddEdge handles POST /api/v1/dkg/edges.
func (h *Handlers) AddEdge(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		From     string             `json:"from"`
		To       string             `json:"to"`
		Relation knowledge.Relation `json:"relation"`
	}](w, r)
	if !ok || !requireField(w, req.From, "from") || !requireField(w, req.To, "to") {
		return
	}
	e := knowledge.Edge{To: req.To, Relation: req.Relation}
	if err := h.Knowledge.AddEdge(r.Context(), req.From, e); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"from": req.From, "to": e.To, "relation": string(e.Relation)})
}

// QueryGraph handles GET /api/v1/dkg/query. Parameters: op, id, known
// (comma separated), goal_tags (tag:weight pairs, comma separated), limit.
func (h *Handlers) QueryGraph(w http.ResponseWriter, r *http.Request) {
	q := knowledge.Query{
		Op:    r.URL.Query().Get("op"),
		ID:    r.URL.Query().Get("id"),
		Known: queryList(r, "known"),
	}
	if !requireField(w, q.Op, "op") {
		return
	}
	if pairs := queryList(r, "goal_tags"); len(pairs) > 0 {
		q.GoalTags = make(map[string]float64, len(pairs))
		for _, p := range pairs {
			tag, raw, found := strings.Cut(p, ":")
			weight := 1.0
			if found {
				v, err := strconv.ParseFloat(raw, 64)
				if err != nil {
					writeError(w, http.StatusBadRequest, "goal_tags weight for "+tag+" must be a number")
					return
				}
				weight = v
			}
			q.GoalTags[tag] = weight
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = n
	}

	res, err := h.Knowledge.Query(r.Context(), q)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
