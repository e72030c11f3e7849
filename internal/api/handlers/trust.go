package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type TrustHandler struct {
	svc *service.TrustService
}

func NewTrustHandler(svc *service.TrustService) *TrustHandler {
	return &TrustHandler{svc: svc}
}

type upsertEdgeRequest struct {
	TargetDID       string     `json:"target_did"`
	Domain          string     `json:"domain"`
	Competence      float64    `json:"competence"`
	Integrity       float64    `json:"integrity"`
	Confidentiality float64    `json:"confidentiality"`
	Judgment        *float64   `json:"judgment,omitempty"`
	CanDelegate     bool       `json:"can_delegate"`
	DelegationDepth uint32     `json:"delegation_depth"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// Upsert creates or overwrites the caller's edge to target_did.
func (h *TrustHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req upsertEdgeRequest
	if !decode(w, r, &req) {
		return
	}

	edge := domain.NewTrustEdge(did, req.TargetDID, req.Competence, req.Integrity, req.Confidentiality)
	edge.Domain = req.Domain
	if req.Judgment != nil {
		edge.Judgment = *req.Judgment
	}
	edge.CanDelegate = req.CanDelegate
	edge.DelegationDepth = req.DelegationDepth
	edge.ExpiresAt = req.ExpiresAt

	out, err := h.svc.AddEdge(r.Context(), edge)
	if err != nil {
		writeServiceError(w, err, "failed to store trust edge")
		return
	}

	writeJSON(w, http.StatusOK, edgeResponse(out))
}

type trustEdgeResponse struct {
	*domain.TrustEdge
	OverallTrust float64 `json:"overall_trust"`
}

func edgeResponse(e *domain.TrustEdge) trustEdgeResponse {
	return trustEdgeResponse{TrustEdge: e, OverallTrust: e.OverallTrust()}
}

// Get returns source -> target; source defaults to the caller.
func (h *TrustHandler) Get(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}
	source := r.URL.Query().Get("source")
	if source == "" {
		source = did
	}

	edge, err := h.svc.GetEdge(r.Context(), source, chi.URLParam(r, "target"), r.URL.Query().Get("domain"))
	if err != nil {
		writeServiceError(w, err, "failed to get trust edge")
		return
	}

	writeJSON(w, http.StatusOK, edgeResponse(edge))
}

// Delete removes one of the caller's own edges.
func (h *TrustHandler) Delete(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteEdge(r.Context(), did, chi.URLParam(r, "target"), r.URL.Query().Get("domain")); err != nil {
		writeServiceError(w, err, "failed to delete trust edge")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type listEdgesResponse struct {
	Edges []domain.TrustEdge `json:"edges"`
	Count int                `json:"count"`
}

// List returns edges leaving (direction=from, default) or entering
// (direction=to) a DID, which defaults to the caller.
func (h *TrustHandler) List(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if d := q.Get("did"); d != "" {
		did = d
	}

	includeExpired, err := queryBool(r, "include_expired", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid include_expired")
		return
	}

	var edges []domain.TrustEdge
	switch q.Get("direction") {
	case "", "from":
		edges, err = h.svc.GetEdgesFrom(r.Context(), did, queryDomain(r), includeExpired)
	case "to":
		edges, err = h.svc.GetEdgesTo(r.Context(), did, queryDomain(r), includeExpired)
	default:
		writeError(w, http.StatusBadRequest, "direction must be from or to")
		return
	}
	if err != nil {
		writeServiceError(w, err, "failed to list trust edges")
		return
	}

	writeJSON(w, http.StatusOK, listEdgesResponse{Edges: edges, Count: len(edges)})
}

type transitiveResponse struct {
	*domain.TransitiveTrustResult
	Hops      int  `json:"hops"`
	Truncated bool `json:"truncated"`
}

// Transitive computes how much source (default: caller) trusts target.
func (h *TrustHandler) Transitive(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	source := q.Get("source")
	if source == "" {
		source = did
	}

	maxHops, err := queryInt(r, "max_hops", 0)
	if err != nil || maxHops < 0 {
		writeError(w, http.StatusBadRequest, "invalid max_hops")
		return
	}
	respect, err := queryBool(r, "respect_delegation", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid respect_delegation")
		return
	}

	res, err := h.svc.ComputeTransitiveTrust(r.Context(), source, q.Get("target"), service.TransitiveOpts{
		Domain:            q.Get("domain"),
		MaxHops:           maxHops,
		RespectDelegation: respect,
	})
	truncated := errors.Is(err, service.ErrTrustGraphTooLarge)
	if err != nil && !(truncated && res != nil) {
		if truncated {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeServiceError(w, err, "failed to compute trust")
		return
	}

	writeJSON(w, http.StatusOK, transitiveResponse{
		TransitiveTrustResult: res,
		Hops:                  len(res.BestPath) - 1,
		Truncated:             truncated,
	})
}
