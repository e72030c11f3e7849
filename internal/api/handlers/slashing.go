package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type SlashingHandler struct {
	svc *service.SlashingService
}

func NewSlashingHandler(svc *service.SlashingService) *SlashingHandler {
	return &SlashingHandler{svc: svc}
}

type createSlashingRequest struct {
	ValidatorDID string         `json:"validator_did"`
	Offense      string         `json:"offense"`
	Severity     string         `json:"severity"`
	Evidence     map[string]any `json:"evidence,omitempty"`
	StakeAmount  *float64       `json:"stake_amount,omitempty"`
}

// Create reports an offense on behalf of the calling operator.
func (h *SlashingHandler) Create(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req createSlashingRequest
	if !decode(w, r, &req) {
		return
	}

	e, err := h.svc.CreateEvent(r.Context(), service.SlashingRequest{
		ValidatorDID: req.ValidatorDID,
		Offense:      domain.Offense(req.Offense),
		Severity:     domain.Severity(req.Severity),
		Evidence:     req.Evidence,
		ReportedBy:   did,
		StakeAmount:  req.StakeAmount,
	})
	if err != nil {
		writeServiceError(w, err, "failed to create slashing event")
		return
	}

	writeJSON(w, http.StatusCreated, e)
}

func (h *SlashingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "failed to get slashing event")
		return
	}

	writeJSON(w, http.StatusOK, e)
}

type listSlashingResponse struct {
	Events []domain.SlashingEvent `json:"events"`
	Count  int                    `json:"count"`
}

func (h *SlashingHandler) ListByValidator(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListByValidator(r.Context(), chi.URLParam(r, "did"))
	if err != nil {
		writeServiceError(w, err, "failed to list slashing events")
		return
	}

	writeJSON(w, http.StatusOK, listSlashingResponse{Events: events, Count: len(events)})
}

type appealRequest struct {
	Reason string `json:"reason"`
}

func (h *SlashingHandler) Appeal(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req appealRequest
	if !decode(w, r, &req) {
		return
	}

	e, err := h.svc.Appeal(r.Context(), id, did, req.Reason)
	h.writeDecision(w, e, err, "failed to appeal slashing event")
}

func (h *SlashingHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	e, err := h.svc.Execute(r.Context(), id)
	h.writeDecision(w, e, err, "failed to execute slashing event")
}

func (h *SlashingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	e, err := h.svc.Reject(r.Context(), id)
	h.writeDecision(w, e, err, "failed to reject slashing event")
}

// writeDecision answers 409 when the service reports a no-op transition.
func (h *SlashingHandler) writeDecision(w http.ResponseWriter, e *domain.SlashingEvent, err error, fallback string) {
	if err != nil {
		writeServiceError(w, err, fallback)
		return
	}
	if e == nil {
		writeError(w, http.StatusConflict, "slashing event is not in a state that allows this transition")
		return
	}
	writeJSON(w, http.StatusOK, e)
}
