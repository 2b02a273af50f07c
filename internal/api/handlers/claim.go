package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/credence-io/credence/internal/domain"
	"github.com/credence-io/credence/internal/service"
	"github.com/credence-io/credence/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const defaultQueryLimit = 50

type ClaimHandler struct {
	svc *service.ClaimService
}

func NewClaimHandler(svc *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{svc: svc}
}

type createClaimRequest struct {
	Namespace  string                    `json:"namespace"`
	Subject    string                    `json:"subject"`
	Predicate  string                    `json:"predicate"`
	Object     string                    `json:"object"`
	Confidence domain.ConfidenceInterval `json:"confidence"`
	Tier       string                    `json:"tier,omitempty"`
	StaleAt    *time.Time                `json:"stale_at,omitempty"`
	Provenance []domain.ProvenanceEntry  `json:"provenance,omitempty"`
	Supersedes []string                  `json:"supersedes,omitempty"`
}

type createClaimResponse struct {
	*domain.Claim
	Validation *service.ValidationResult `json:"validation"`
}

func (h *ClaimHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Tier != "" && !domain.ValidTier(req.Tier) {
		writeError(w, http.StatusBadRequest, "invalid tier")
		return
	}

	supersedes := make([]uuid.UUID, 0, len(req.Supersedes))
	for _, raw := range req.Supersedes {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid supersedes id")
			return
		}
		supersedes = append(supersedes, id)
	}

	claim, result, err := h.svc.Assert(r.Context(), service.AssertClaimInput{
		Namespace:  req.Namespace,
		Subject:    req.Subject,
		Predicate:  req.Predicate,
		Object:     req.Object,
		Confidence: req.Confidence,
		Tier:       domain.Tier(req.Tier),
		StaleAt:    req.StaleAt,
		Provenance: req.Provenance,
		Supersedes: supersedes,
	})
	if err != nil {
		if errors.Is(err, service.ErrClaimRejected) {
			writeJSON(w, rejectionStatus(result), result)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to assert claim")
		return
	}

	writeJSON(w, http.StatusCreated, createClaimResponse{
		Claim:      claim,
		Validation: result,
	})
}

// rejectionStatus maps a gatekeeper refusal to an HTTP status. Duplicate hits
// are conflicts with an existing claim; everything else is a content problem.
func rejectionStatus(result *service.ValidationResult) int {
	for _, reason := range result.Reasons {
		if reason.Code == service.ReasonDuplicate {
			return http.StatusConflict
		}
	}
	return http.StatusUnprocessableEntity
}

func (h *ClaimHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	claim, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "claim not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get claim")
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

type queryClaimsResponse struct {
	Claims []domain.Claim `json:"claims"`
	Count  int            `json:"count"`
}

func (h *ClaimHandler) Query(w http.ResponseWriter, r *http.Request) {
	q := domain.ClaimQuery{
		Namespace: r.URL.Query().Get("namespace"),
		Limit:     defaultQueryLimit,
	}

	if tier := r.URL.Query().Get("tier"); tier != "" {
		if !domain.ValidTier(tier) {
			writeError(w, http.StatusBadRequest, "invalid tier")
			return
		}
		q.Tier = domain.Tier(tier)
	}

	if raw := r.URL.Query().Get("min_confidence"); raw != "" {
		min, err := strconv.ParseFloat(raw, 64)
		if err != nil || min < 0 || min > 1 {
			writeError(w, http.StatusBadRequest, "invalid min_confidence")
			return
		}
		q.MinConfidence = min
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = limit
	}

	claims, err := h.svc.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query claims")
		return
	}
	if claims == nil {
		claims = []domain.Claim{}
	}

	writeJSON(w, http.StatusOK, queryClaimsResponse{Claims: claims, Count: len(claims)})
}

type searchClaimsRequest struct {
	Text      string `json:"text"`
	Namespace string `json:"namespace,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type searchClaimsResponse struct {
	Results []domain.ClaimWithScore `json:"results"`
	Count   int                     `json:"count"`
}

func (h *ClaimHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchClaimsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	results, err := h.svc.Search(r.Context(), req.Text, req.Namespace, req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search claims")
		return
	}
	if results == nil {
		results = []domain.ClaimWithScore{}
	}

	writeJSON(w, http.StatusOK, searchClaimsResponse{Results: results, Count: len(results)})
}

func (h *ClaimHandler) Confidence(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	report, err := h.svc.EffectiveConfidence(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "claim not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to compute confidence")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type provenanceResponse struct {
	ClaimID uuid.UUID                `json:"claim_id"`
	Entries []domain.ProvenanceEntry `json:"entries"`
	Count   int                      `json:"count"`
}

func (h *ClaimHandler) Provenance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claim id")
		return
	}

	entries, err := h.svc.Provenance(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "claim not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get provenance")
		return
	}
	if entries == nil {
		entries = []domain.ProvenanceEntry{}
	}

	writeJSON(w, http.StatusOK, provenanceResponse{ClaimID: id, Entries: entries, Count: len(entries)})
}
