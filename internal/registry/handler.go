package registry

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/middleware"
	"github.com/inaiurai/marketplace/internal/models"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// PutMyProfile handles PUT /v1/taskers/me/profile.
func (h *Handler) PutMyProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, r, h.log, apperr.ErrUnauthorized)
		return
	}
	var req ProfileParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	p, err := h.svc.UpsertProfile(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// GetProfile handles GET /v1/taskers/{id}.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	p, err := h.svc.GetProfile(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

// Search handles GET /v1/taskers?category=&city=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		httpx.WriteError(w, r, h.log, apperr.Validation("category is required"))
		return
	}
	list, err := h.svc.FindAvailableTaskers(r.Context(), category, r.URL.Query().Get("city"))
	if err != nil {
		httpx.WriteError(w, r, h.log, err)
		return
	}
	if list == nil {
		list = []*models.TaskerProfile{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": list})
}
