package handlers

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/services"
)

// DisputeHandler serves /v1/disputes and /v1/reviews, the after-care of a
// booking.
type DisputeHandler struct {
	Disputes services.DisputeService
	Reviews  services.ReviewService
	Logger   *slog.Logger
}

func NewDisputeHandler(disputes services.DisputeService, reviews services.ReviewService, log *slog.Logger) *DisputeHandler {
	return &DisputeHandler{Disputes: disputes, Reviews: reviews, Logger: defaultLogger(log)}
}

// OpenDispute handles POST /v1/disputes.
func (h *DisputeHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.OpenDisputeParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	d, err := h.Disputes.Open(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, d)
}

// GetDispute handles GET /v1/disputes/{id}.
func (h *DisputeHandler) GetDispute(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	d, err := h.Disputes.Get(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

type evidenceRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// AddEvidence handles POST /v1/disputes/{id}/evidence.
func (h *DisputeHandler) AddEvidence(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req evidenceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	d, err := h.Disputes.AddEvidence(r.Context(), actor, id, req.Content)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

// CreateReview handles POST /v1/reviews.
func (h *DisputeHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.ReviewParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	rv, err := h.Reviews.Create(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rv)
}
