package handlers

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/services"
)

// BidHandler serves /v1/bids endpoints.
type BidHandler struct {
	Bids   services.BidService
	Logger *slog.Logger
}

func NewBidHandler(bids services.BidService, log *slog.Logger) *BidHandler {
	return &BidHandler{Bids: bids, Logger: defaultLogger(log)}
}

// SubmitBid handles POST /v1/bids. A second submission from the same tasker
// updates their bid.
func (h *BidHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.BidParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	bid, err := h.Bids.SubmitOrUpdate(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bid)
}

// AcceptBid handles POST /v1/bids/{id}/accept and returns the offered booking.
func (h *BidHandler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	booking, err := h.Bids.AcceptBid(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, booking)
}

// DeclineBid handles POST /v1/bids/{id}/decline.
func (h *BidHandler) DeclineBid(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	bid, err := h.Bids.DeclineBid(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, bid)
}

// SendMessage handles POST /v1/bids/{id}/messages.
func (h *BidHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.MessageParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	msg, err := h.Bids.SendMessage(r.Context(), actor, id, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, msg)
}

// ListMessages handles GET /v1/bids/{id}/messages.
func (h *BidHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	page, err := httpx.PageFromQuery(r)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	list, err := h.Bids.ListMessages(r.Context(), actor, id, page)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}
