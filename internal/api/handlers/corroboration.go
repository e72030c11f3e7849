package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/service"
	"github.com/go-chi/chi/v5"
)

type CorroborationHandler struct {
	svc *service.CorroborationService
}

func NewCorroborationHandler(svc *service.CorroborationService) *CorroborationHandler {
	return &CorroborationHandler{svc: svc}
}

type registerBeliefRequest struct {
	BeliefID   string `json:"belief_id"`
	Content    string `json:"content"`
	SourceID   string `json:"source_id"`
	SourceType string `json:"source_type"`
}

// Register records a belief; source_id defaults to the caller.
func (h *CorroborationHandler) Register(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req registerBeliefRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SourceID == "" {
		req.SourceID = did
	}

	ev, err := h.svc.Register(r.Context(), req.BeliefID, req.Content, req.SourceID, domain.SourceType(req.SourceType))
	if err != nil {
		writeServiceError(w, err, "failed to register belief")
		return
	}

	writeJSON(w, http.StatusCreated, ev)
}

type checkCorroborationRequest struct {
	Content    string                          `json:"content"`
	SourceID   string                          `json:"source_id"`
	SourceType string                          `json:"source_type"`
	Candidates []domain.CorroborationCandidate `json:"candidates,omitempty"`
}

// Check scores content against the given candidates, or against the nearest
// indexed beliefs when none are supplied.
func (h *CorroborationHandler) Check(w http.ResponseWriter, r *http.Request) {
	did, ok := callerDID(w, r)
	if !ok {
		return
	}

	var req checkCorroborationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SourceID == "" {
		req.SourceID = did
	}

	res, err := h.svc.CheckCorroboration(r.Context(), req.Content, req.SourceID, domain.SourceType(req.SourceType), req.Candidates)
	if err != nil {
		writeServiceError(w, err, "failed to check corroboration")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type evidenceResponse struct {
	*domain.CorroborationEvidence
	CorroborationCount int     `json:"corroboration_count"`
	UniqueSourceTypes  int     `json:"unique_source_types"`
	AverageSimilarity  float64 `json:"average_similarity"`
}

func newEvidenceResponse(ev *domain.CorroborationEvidence) evidenceResponse {
	return evidenceResponse{
		CorroborationEvidence: ev,
		CorroborationCount:    ev.CorroborationCount(),
		UniqueSourceTypes:     ev.UniqueSourceTypes(),
		AverageSimilarity:     ev.AverageSimilarity(),
	}
}

func (h *CorroborationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.GetEvidence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "failed to get evidence")
		return
	}

	writeJSON(w, http.StatusOK, newEvidenceResponse(ev))
}

type elevationCandidatesResponse struct {
	Candidates []evidenceResponse `json:"candidates"`
	Count      int                `json:"count"`
}

func (h *CorroborationHandler) ElevationCandidates(w http.ResponseWriter, r *http.Request) {
	minSources, err := queryInt(r, "min_sources", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_sources")
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	list, err := h.svc.GetElevationCandidates(r.Context(), minSources, limit)
	if err != nil {
		writeServiceError(w, err, "failed to list elevation candidates")
		return
	}

	out := make([]evidenceResponse, len(list))
	for i := range list {
		out[i] = newEvidenceResponse(&list[i])
	}
	writeJSON(w, http.StatusOK, elevationCandidatesResponse{Candidates: out, Count: len(out)})
}
