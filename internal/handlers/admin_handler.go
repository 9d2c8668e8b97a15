package handlers

import (
	"log/slog"
	"net/http"

	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/services"
)

// AdminHandler serves /v1/admin. The router admits staff only; the services
// check the role again.
type AdminHandler struct {
	Tasks    services.TaskService
	Disputes services.DisputeService
	Logger   *slog.Logger
}

func NewAdminHandler(tasks services.TaskService, disputes services.DisputeService, log *slog.Logger) *AdminHandler {
	return &AdminHandler{Tasks: tasks, Disputes: disputes, Logger: defaultLogger(log)}
}

// ResolveDispute handles POST /v1/admin/disputes/{id}/resolve.
func (h *AdminHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.ResolveParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	d, err := h.Disputes.Resolve(r.Context(), actor, id, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

// CancelTask handles POST /v1/admin/tasks/{id}/cancel on behalf of the client.
func (h *AdminHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.CancelOnBehalfOfClient(r.Context(), actor, id, req.Reason)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// SettleTask handles POST /v1/admin/tasks/{id}/settle.
func (h *AdminHandler) SettleTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	out, err := h.Tasks.Settle(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// TaskHistory handles GET /v1/admin/tasks/{id}/history: task and booking
// events in one timeline.
func (h *AdminHandler) TaskHistory(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	events, err := h.Tasks.History(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	writeEvents(w, events)
}
