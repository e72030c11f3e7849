package handlers

import (
	"crypto/ed25519"
	"encoding/base64"
	"net/http"

	"github.com/Harshitk-cp/concord/internal/service"
)

type IdentityHandler struct {
	svc *service.IdentityService
}

func NewIdentityHandler(svc *service.IdentityService) *IdentityHandler {
	return &IdentityHandler{svc: svc}
}

type createIdentityRequest struct {
	DID       string `json:"did"`
	PublicKey string `json:"public_key"`
}

// Create bootstraps a DID with the base64 Ed25519 key its requests will be
// signed with.
func (h *IdentityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIdentityRequest
	if !decode(w, r, &req) {
		return
	}

	key, err := base64.StdEncoding.DecodeString(req.PublicKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "public_key must be base64")
		return
	}

	id, err := h.svc.Register(r.Context(), req.DID, ed25519.PublicKey(key))
	if err != nil {
		writeServiceError(w, err, "failed to register identity")
		return
	}

	writeJSON(w, http.StatusCreated, id)
}
