package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type StakeHandler struct {
	svc *service.StakeService
}

func NewStakeHandler(svc *service.StakeService) *StakeHandler {
	return &StakeHandler{svc: svc}
}

type stakeAmountRequest struct {
	Amount float64 `json:"amount"`
}

func (h *StakeHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req stakeAmountRequest
	if !decode(w, r, &req) {
		return
	}

	pos, err := h.svc.Deposit(r.Context(), did, req.Amount)
	if err != nil {
		writeServiceError(w, err, "failed to deposit stake")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

func (h *StakeHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req stakeAmountRequest
	if !decode(w, r, &req) {
		return
	}

	pos, err := h.svc.Withdraw(r.Context(), did, req.Amount)
	if err != nil {
		writeServiceError(w, err, "failed to withdraw stake")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

func (h *StakeHandler) Get(w http.ResponseWriter, r *http.Request) {
	pos, err := h.svc.GetPosition(r.Context(), chi.URLParam(r, "did"))
	if err != nil {
		writeServiceError(w, err, "failed to get stake position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}
