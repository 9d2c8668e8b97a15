package handlers

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/models"
	"github.com/inaiurai/marketplace/internal/services"
)

// BookingHandler serves /v1/bookings endpoints.
type BookingHandler struct {
	Bookings services.BookingService
	Logger   *slog.Logger
}

func NewBookingHandler(bookings services.BookingService, log *slog.Logger) *BookingHandler {
	return &BookingHandler{Bookings: bookings, Logger: defaultLogger(log)}
}

// --- POST /v1/bookings ---

// CreateBooking handles POST /v1/bookings, a direct offer to one tasker.
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.DirectBookingParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	b, err := h.Bookings.CreateDirect(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, b)
}

// --- GET /v1/bookings ---

// ListBookings handles GET /v1/bookings?status=&task_id=&cursor=&limit=.
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r, h.Logger)
	if !ok {
		return
	}
	page, err := httpx.PageFromQuery(r)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	taskID, err := queryUUID(r, "task_id")
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	list, err := h.Bookings.List(r.Context(), actor, models.BookingFilter{
		TaskID:   taskID,
		Statuses: queryList(r, "status"),
		Page:     page,
	})
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// --- GET /v1/bookings/{id}, /events ---

// GetBooking handles GET /v1/bookings/{id}.
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	b, err := h.Bookings.Get(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// ListEvents handles GET /v1/bookings/{id}/events.
func (h *BookingHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	events, err := h.Bookings.Events(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	writeEvents(w, events)
}

// --- tasker responses ---

// AcceptBooking handles POST /v1/bookings/{id}/accept.
func (h *BookingHandler) AcceptBooking(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	b, err := h.Bookings.Accept(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// RejectBooking handles POST /v1/bookings/{id}/reject.
func (h *BookingHandler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	b, err := h.Bookings.Reject(r.Context(), actor, id, req.Reason)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// MarkArrived handles POST /v1/bookings/{id}/arrived.
func (h *BookingHandler) MarkArrived(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	b, err := h.Bookings.MarkArrived(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// --- POST /v1/bookings/{id}/status ---

type statusRequest struct {
	Status   string         `json:"status" validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

// UpdateStatus handles POST /v1/bookings/{id}/status, the generic transition.
func (h *BookingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	b, err := h.Bookings.UpdateStatus(r.Context(), actor, id, req.Status, req.Metadata)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}

// CancelBooking handles POST /v1/bookings/{id}/cancel.
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	b, err := h.Bookings.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, b)
}
