package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/finance-dashboard/internal/api/middleware"
	"github.com/dvloznov/finance-dashboard/internal/dashboard"
	"github.com/dvloznov/finance-dashboard/internal/domain"
	"github.com/dvloznov/finance-dashboard/internal/jobs"
	"github.com/rs/zerolog"
)

// AssistantService is the AI side of dashboard.Service.
type AssistantService interface {
	SubmitCapture(ctx context.Context, text string) (*jobs.GatewayJob, error)
	SubmitAdvice(ctx context.Context) (*jobs.GatewayJob, error)
	LatestAdvice() (*domain.FinancialAdvice, bool)
}

// AssistantHandler handles capture and advice endpoints.
type AssistantHandler struct {
	svc AssistantService
	log zerolog.Logger
}

// NewAssistantHandler creates a new assistant handler.
func NewAssistantHandler(svc AssistantService, log zerolog.Logger) *AssistantHandler {
	return &AssistantHandler{
		svc: svc,
		log: log,
	}
}

// Capture handles POST /api/capture
func (h *AssistantHandler) Capture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.svc.SubmitCapture(r.Context(), req.Text)
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	h.log.Info().Str("job_id", job.JobID).Msg("Capture job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// RequestAdvice handles POST /api/advice
func (h *AssistantHandler) RequestAdvice(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.SubmitAdvice(r.Context())
	if err != nil {
		h.writeSubmitError(w, err)
		return
	}

	h.log.Info().Str("job_id", job.JobID).Msg("Advice job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, job)
}

// GetAdvice handles GET /api/advice
func (h *AssistantHandler) GetAdvice(w http.ResponseWriter, r *http.Request) {
	advice, ok := h.svc.LatestAdvice()
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "No advice yet")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, advice)
}

func (h *AssistantHandler) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrEmptyText):
		middleware.WriteError(w, http.StatusBadRequest, "Text is required")
	case errors.Is(err, dashboard.ErrBusy):
		middleware.WriteError(w, http.StatusConflict, "A request is already in progress")
	case errors.Is(err, dashboard.ErrEmptyLedger):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Add some transactions first")
	case errors.Is(err, dashboard.ErrNoQueue):
		middleware.WriteError(w, http.StatusServiceUnavailable, "AI assistant is not available")
	default:
		h.log.Error().Err(err).Msg("Failed to enqueue job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
	}
}
