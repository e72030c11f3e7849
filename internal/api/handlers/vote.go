package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type VoteHandler struct {
	svc *service.CommitRevealService
}

func NewVoteHandler(svc *service.CommitRevealService) *VoteHandler {
	return &VoteHandler{svc: svc}
}

type commitRequest struct {
	BeliefID            string `json:"belief_id"`
	CommitmentHash      string `json:"commitment_hash"`
	DelaySeconds        *int   `json:"delay_seconds,omitempty"`
	RevealWindowMinutes *int   `json:"reveal_window_minutes,omitempty"`
}

func (h *VoteHandler) Commit(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.svc.SubmitCommitment(r.Context(), service.CommitmentRequest{
		BeliefID:            req.BeliefID,
		CommitterDID:        did,
		CommitmentHash:      req.CommitmentHash,
		DelaySeconds:        req.DelaySeconds,
		RevealWindowMinutes: req.RevealWindowMinutes,
	})
	if err != nil {
		writeServiceError(w, err, "failed to submit commitment")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

type revealRequest struct {
	VoteValue string `json:"vote_value"`
	Nonce     string `json:"nonce"`
}

// Reveal answers 200 with is_valid=false on a hash mismatch; the commitment is
// left open.
func (h *VoteHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req revealRequest
	if !decode(w, r, &req) {
		return
	}

	reveal, err := h.svc.SubmitReveal(r.Context(), id, did, req.VoteValue, req.Nonce)
	if err != nil {
		writeServiceError(w, err, "failed to submit reveal")
		return
	}

	writeJSON(w, http.StatusOK, reveal)
}

func (h *VoteHandler) Tally(w http.ResponseWriter, r *http.Request) {
	tally, err := h.svc.Tally(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to tally votes")
		return
	}

	writeJSON(w, http.StatusOK, tally)
}

func (h *VoteHandler) Expire(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ExpireUnrevealed(r.Context())
	if err != nil {
		writeServiceError(w, err, "failed to expire commitments")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"expired": n})
}
