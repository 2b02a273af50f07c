package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/credence-io/credence/internal/domain"
	"github.com/credence-io/credence/internal/service"
	"go.uber.org/zap"
)

type JanitorHandler struct {
	janitor *service.Janitor
	store   domain.ClaimStore
	logger  *zap.Logger
}

func NewJanitorHandler(janitor *service.Janitor, cs domain.ClaimStore, logger *zap.Logger) *JanitorHandler {
	return &JanitorHandler{janitor: janitor, store: cs, logger: logger}
}

type sweepRequest struct {
	DryRun bool `json:"dry_run,omitempty"`
}

type sweepResponse struct {
	DryRun  bool                    `json:"dry_run"`
	Metrics *service.JanitorMetrics `json:"metrics"`
}

// Sweep runs one sweep cycle immediately. A dry-run request uses a throwaway
// janitor over the same store, so the live janitor's cumulative metrics stay
// untouched.
func (h *JanitorHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := h.janitor
	if req.DryRun && !target.Config().DryRun {
		cfg := target.Config()
		cfg.DryRun = true
		dry, err := service.NewJanitor(h.store, cfg, h.logger)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to configure dry run")
			return
		}
		target = dry
	}

	metrics, err := target.Sweep(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, sweepResponse{
		DryRun:  target.Config().DryRun,
		Metrics: metrics,
	})
}

type janitorMetricsResponse struct {
	Config  service.JanitorConfig   `json:"config"`
	Metrics *service.JanitorMetrics `json:"metrics"`
	Summary string                  `json:"summary"`
}

func (h *JanitorHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics := h.janitor.Metrics()
	writeJSON(w, http.StatusOK, janitorMetricsResponse{
		Config:  h.janitor.Config(),
		Metrics: metrics,
		Summary: metrics.Summary(),
	})
}
