package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type DisputeHandler struct {
	svc *service.DisputeService
}

func NewDisputeHandler(svc *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{svc: svc}
}

type validateDisputeRequest struct {
	BeliefID string `json:"belief_id"`
}

func (h *DisputeHandler) Validate(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req validateDisputeRequest
	if !decode(w, r, &req) {
		return
	}

	stake, err := h.svc.ValidateDisputeFiling(r.Context(), did, req.BeliefID)
	if err != nil {
		writeServiceError(w, err, "failed to validate dispute")
		return
	}

	writeJSON(w, http.StatusOK, stake)
}

type fileDisputeRequest struct {
	BeliefID string `json:"belief_id"`
	Reason   string `json:"reason"`
}

type fileDisputeResponse struct {
	Dispute *domain.Dispute          `json:"dispute"`
	Stake   *domain.StakeRequirement `json:"stake"`
}

func (h *DisputeHandler) File(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req fileDisputeRequest
	if !decode(w, r, &req) {
		return
	}

	d, stake, err := h.svc.FileDispute(r.Context(), did, req.BeliefID, req.Reason)
	if err != nil {
		writeServiceError(w, err, "failed to file dispute")
		return
	}

	writeJSON(w, http.StatusCreated, fileDisputeResponse{Dispute: d, Stake: stake})
}

func (h *DisputeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	d, err := h.svc.GetDispute(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get dispute")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

type resolveDisputeRequest struct {
	Outcome string `json:"outcome"`
}

func (h *DisputeHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req resolveDisputeRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := h.svc.ResolveDispute(r.Context(), id, domain.DisputeOutcome(req.Outcome))
	if err != nil {
		writeServiceError(w, err, "failed to resolve dispute")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

func (h *DisputeHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	d, err := h.svc.WithdrawDispute(r.Context(), id, did)
	if err != nil {
		writeServiceError(w, err, "failed to withdraw dispute")
		return
	}

	writeJSON(w, http.StatusOK, d)
}

type qualityResponse struct {
	domain.DisputeQuality
	Score   float64 `json:"score"`
	CanFile bool    `json:"can_file"`
}

func (h *DisputeHandler) Quality(w http.ResponseWriter, r *http.Request) {
	q, err := h.svc.GetQuality(r.Context(), chi.URLParam(r, "did"))
	if err != nil {
		writeServiceError(w, err, "failed to get dispute quality")
		return
	}

	writeJSON(w, http.StatusOK, qualityResponse{
		DisputeQuality: q,
		Score:          q.Score(),
		CanFile:        h.svc.CanFile(q),
	})
}
