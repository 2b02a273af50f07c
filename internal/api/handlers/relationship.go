package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/credence-io/credence/internal/domain"
	"github.com/credence-io/credence/internal/service"
	"github.com/credence-io/credence/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type RelationshipHandler struct {
	svc *service.ClaimService
}

func NewRelationshipHandler(svc *service.ClaimService) *RelationshipHandler {
	return &RelationshipHandler{svc: svc}
}

type createRelationshipRequest struct {
	FromClaim string  `json:"from_claim"`
	ToClaim   string  `json:"to_claim"`
	Type      string  `json:"type"`
	Strength  float64 `json:"strength"`
}

func (h *RelationshipHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRelationshipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	from, err := uuid.Parse(req.FromClaim)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from_claim")
		return
	}
	to, err := uuid.Parse(req.ToClaim)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to_claim")
		return
	}

	rel, err := h.svc.AddRelationship(r.Context(), from, to, domain.RelationshipType(req.Type), req.Strength)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRelationship):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to add relationship")
		}
		return
	}

	writeJSON(w, http.StatusCreated, rel)
}

type listRelationshipsResponse struct {
	ClaimID       uuid.UUID             `json:"claim_id"`
	Relationships []domain.Relationship `json:"relationships"`
	Count         int                   `json:"count"`
}

func (h *RelationshipHandler) ListForClaim(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	rels, err := h.svc.Relationships(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "claim not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list relationships")
		return
	}
	if rels == nil {
		rels = []domain.Relationship{}
	}

	writeJSON(w, http.StatusOK, listRelationshipsResponse{ClaimID: id, Relationships: rels, Count: len(rels)})
}
