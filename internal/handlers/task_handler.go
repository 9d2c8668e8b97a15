package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/models"
	"github.com/inaiurai/marketplace/internal/services"
)

// CategoryLister reports the categories that have a structured_inputs schema.
type CategoryLister interface {
	Categories() []string
}

// TaskHandler serves /v1/tasks endpoints.
type TaskHandler struct {
	Tasks      services.TaskService
	Bids       services.BidService
	Categories CategoryLister
	Logger     *slog.Logger
}

func NewTaskHandler(tasks services.TaskService, bids services.BidService, categories CategoryLister, log *slog.Logger) *TaskHandler {
	return &TaskHandler{Tasks: tasks, Bids: bids, Categories: categories, Logger: defaultLogger(log)}
}

// --- POST /v1/tasks ---

// CreateTask handles POST /v1/tasks. The task starts as a draft.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.TaskParams
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.Create(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, task)
}

// --- GET /v1/tasks ---

// ListTasks handles GET /v1/tasks?state=&category=&city=&bid_mode=&cursor=&limit=.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	actor, ok := caller(w, r, h.Logger)
	if !ok {
		return
	}
	page, err := httpx.PageFromQuery(r)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	q := r.URL.Query()
	list, err := h.Tasks.List(r.Context(), actor, models.TaskFilter{
		States:   queryList(r, "state"),
		Category: q.Get("category"),
		City:     q.Get("city"),
		BidMode:  q.Get("bid_mode"),
		Page:     page,
	})
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// --- GET /v1/tasks/{id} ---

// GetTask handles GET /v1/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	task, err := h.Tasks.Get(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// --- PATCH /v1/tasks/{id} ---

// UpdateTask handles PATCH /v1/tasks/{id}. Only draft and posted tasks change.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req services.TaskUpdate
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.Update(r.Context(), actor, id, req)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// --- POST /v1/tasks/{id}/post ---

// PostTask handles POST /v1/tasks/{id}/post.
func (h *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	task, err := h.Tasks.Post(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// --- POST /v1/tasks/{id}/cancel ---

// CancelTask handles POST /v1/tasks/{id}/cancel with an optional reason.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req reasonRequest
	if err := decodeOptional(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// --- POST /v1/tasks/{id}/accept, /decline ---

// AcceptTask handles POST /v1/tasks/{id}/accept by an offered tasker and
// returns the new booking.
func (h *TaskHandler) AcceptTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	booking, err := h.Tasks.AcceptByTasker(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, booking)
}

// DeclineTask handles POST /v1/tasks/{id}/decline.
func (h *TaskHandler) DeclineTask(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	if err := h.Tasks.DeclineByTasker(r.Context(), actor, id); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- POST /v1/tasks/{id}/invite ---

type inviteRequest struct {
	TaskerIDs []uuid.UUID `json:"tasker_ids" validate:"required,min=1,max=50"`
}

// InviteTaskers handles POST /v1/tasks/{id}/invite.
func (h *TaskHandler) InviteTaskers(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req inviteRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	task, err := h.Tasks.InviteTaskers(r.Context(), actor, id, req.TaskerIDs)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// --- GET /v1/tasks/{id}/candidates ---

// ListCandidates handles GET /v1/tasks/{id}/candidates for the owner.
func (h *TaskHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	candidates, err := h.Tasks.Candidates(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	if candidates == nil {
		candidates = []models.TaskCandidate{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": candidates})
}

// --- GET /v1/tasks/{id}/events ---

// ListEvents handles GET /v1/tasks/{id}/events, the task's state timeline.
func (h *TaskHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	events, err := h.Tasks.Events(r.Context(), actor, id)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	writeEvents(w, events)
}

// --- GET /v1/tasks/{id}/bids ---

// ListBids handles GET /v1/tasks/{id}/bids.
func (h *TaskHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	page, err := httpx.PageFromQuery(r)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	list, err := h.Bids.ListForTask(r.Context(), actor, id, page)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// --- POST /v1/tasks/{id}/quote-requests ---

type quoteRequest struct {
	TaskerID uuid.UUID `json:"tasker_id" validate:"required"`
}

// RequestQuote handles POST /v1/tasks/{id}/quote-requests: the client asks a
// tasker to price the task.
func (h *TaskHandler) RequestQuote(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := callerAndID(w, r, h.Logger)
	if !ok {
		return
	}
	var req quoteRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	bid, err := h.Bids.RequestQuote(r.Context(), actor, id, req.TaskerID)
	if err != nil {
		httpx.WriteError(w, r, h.Logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, bid)
}

// --- GET /v1/categories ---

type categoryInfo struct {
	Name             string `json:"name"`
	StructuredInputs bool   `json:"structured_inputs"`
}

// ListCategories handles GET /v1/categories (public, no auth). Tasks may use
// any category; the listed ones validate structured_inputs.
func (h *TaskHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if h.Categories == nil {
		httpx.WriteError(w, r, h.Logger, apperr.NotFound("categories"))
		return
	}
	items := []categoryInfo{}
	for _, c := range h.Categories.Categories() {
		items = append(items, categoryInfo{Name: c, StructuredInputs: true})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func writeEvents(w http.ResponseWriter, events []*models.Event) {
	if events == nil {
		events = []*models.Event{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": events})
}
