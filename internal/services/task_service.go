package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/lifecycle"
	"github.com/inaiurai/marketplace/internal/models"
)

// TaskParams are the client-supplied fields of a new task.
type TaskParams struct {
	Category           string          `json:"category" validate:"required,max=64"`
	Subcategory        string          `json:"subcategory" validate:"max=64"`
	Description        string          `json:"description" validate:"required,min=10,max=5000"`
	Location           models.Location `json:"location"`
	ScheduledStart     *time.Time      `json:"scheduled_start"`
	FlexibilityMinutes int             `json:"flexibility_minutes" validate:"gte=0,lte=10080"`
	PricingModel       string          `json:"pricing_model" validate:"required,oneof=fixed hourly"`
	PriceAmount        *int64          `json:"price_amount" validate:"omitempty,gt=0"`
	PriceCurrency      string          `json:"price_currency" validate:"omitempty,len=3"`
	StructuredInputs   json.RawMessage `json:"structured_inputs"`
	BidMode            string          `json:"bid_mode" validate:"omitempty,oneof=invite_only open_for_bids"`
}

// TaskUpdate carries the fields a client may change before the task is
// taken. Nil fields are left alone.
type TaskUpdate struct {
	Subcategory        *string          `json:"subcategory" validate:"omitempty,max=64"`
	Description        *string          `json:"description" validate:"omitempty,min=10,max=5000"`
	Location           *models.Location `json:"location"`
	ScheduledStart     *time.Time       `json:"scheduled_start"`
	FlexibilityMinutes *int             `json:"flexibility_minutes" validate:"omitempty,gte=0,lte=10080"`
	PricingModel       *string          `json:"pricing_model" validate:"omitempty,oneof=fixed hourly"`
	PriceAmount        *int64           `json:"price_amount" validate:"omitempty,gt=0"`
	PriceCurrency      *string          `json:"price_currency" validate:"omitempty,len=3"`
	StructuredInputs   json.RawMessage  `json:"structured_inputs"`
	BidMode            *string          `json:"bid_mode" validate:"omitempty,oneof=invite_only open_for_bids"`
}

// Settlement is the result of settling a completed task.
type Settlement struct {
	Task   *models.Task        `json:"task"`
	Payout *models.LedgerEntry `json:"payout,omitempty"`
}

// InputValidator checks structured_inputs for a category.
type InputValidator interface {
	ValidateStructuredInputs(category string, raw json.RawMessage) error
}

type TaskService interface {
	Create(ctx context.Context, actor models.Actor, p TaskParams) (*models.Task, error)
	Post(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, actor models.Actor, id uuid.UUID, u TaskUpdate) (*models.Task, error)
	Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Task, error)
	AcceptByTasker(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	DeclineByTasker(ctx context.Context, actor models.Actor, id uuid.UUID) error
	InviteTaskers(ctx context.Context, actor models.Actor, id uuid.UUID, taskerIDs []uuid.UUID) (*models.Task, error)
	StartMatching(ctx context.Context, actor models.Actor, id uuid.UUID, candidates []models.TaskCandidate) (*models.Task, error)
	CancelOnBehalfOfClient(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Task, error)
	Settle(ctx context.Context, actor models.Actor, id uuid.UUID) (*Settlement, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, actor models.Actor, f models.TaskFilter) (models.List[*models.Task], error)
	Events(ctx context.Context, actor models.Actor, id uuid.UUID) ([]*models.Event, error)
	History(ctx context.Context, actor models.Actor, id uuid.UUID) ([]*models.Event, error)
	Candidates(ctx context.Context, actor models.Actor, id uuid.UUID) ([]models.TaskCandidate, error)
}

type taskService struct {
	*Deps
	inputs InputValidator
}

func NewTaskService(deps *Deps, inputs InputValidator) TaskService {
	deps.init()
	return &taskService{Deps: deps, inputs: inputs}
}

var _ TaskService = (*taskService)(nil)

func normalizeCurrency(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return models.DefaultCurrency
	}
	return c
}

func (s *taskService) validateInputs(category string, raw json.RawMessage) error {
	if s.inputs == nil {
		return nil
	}
	return s.inputs.ValidateStructuredInputs(category, raw)
}

func (s *taskService) Create(ctx context.Context, actor models.Actor, p TaskParams) (*models.Task, error) {
	if actor.Role != models.RoleClient {
		return nil, apperr.Forbidden("only clients create tasks")
	}
	if err := httpx.Validate(p); err != nil {
		return nil, err
	}
	category := strings.ToLower(strings.TrimSpace(p.Category))
	if err := s.validateInputs(category, p.StructuredInputs); err != nil {
		return nil, err
	}
	bidMode := p.BidMode
	if bidMode == "" {
		bidMode = models.BidModeOpenForBids
	}
	t := &models.Task{
		ID:                 newID(),
		ClientID:           actor.ID,
		Category:           category,
		Subcategory:        p.Subcategory,
		Description:        strings.TrimSpace(p.Description),
		Location:           p.Location,
		ScheduledStart:     p.ScheduledStart,
		FlexibilityMinutes: p.FlexibilityMinutes,
		PricingModel:       p.PricingModel,
		PriceAmount:        p.PriceAmount,
		PriceCurrency:      normalizeCurrency(p.PriceCurrency),
		StructuredInputs:   p.StructuredInputs,
		BidMode:            bidMode,
		State:              models.TaskStateDraft,
	}
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		if err := s.Tasks.CreateTask(ctx, tx, t); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, &models.Event{
			AggregateType: models.AggregateTask,
			AggregateID:   t.ID,
			TaskID:        t.ID,
			ToState:       t.State,
		}, actor, nil)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("task created", "task_id", t.ID, "client_id", t.ClientID, "category", t.Category)
	return t, nil
}

// ownedTask locks the task and checks the actor is its client.
func (s *taskService) ownedTask(ctx context.Context, tx pgx.Tx, actor models.Actor, id uuid.UUID) (*models.Task, error) {
	t, err := s.Tasks.GetTaskForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.ClientID != actor.ID {
		return nil, apperr.NotFound("task")
	}
	return t, nil
}

func (s *taskService) Post(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Task, error) {
	var t *models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if t, err = s.ownedTask(ctx, tx, actor, id); err != nil {
			return err
		}
		if err := s.applyTask(ctx, tx, t, lifecycle.TaskPost, actor, "", nil); err != nil {
			return err
		}
		return s.Jobs.MatchCandidates(ctx, tx, t.ID)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *taskService) Update(ctx context.Context, actor models.Actor, id uuid.UUID, u TaskUpdate) (*models.Task, error) {
	if err := httpx.Validate(u); err != nil {
		return nil, err
	}
	var t *models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if t, err = s.ownedTask(ctx, tx, actor, id); err != nil {
			return err
		}
		if t.State != models.TaskStateDraft && t.State != models.TaskStatePosted {
			return apperr.InvalidState("task", t.State, "update")
		}
		applyTaskUpdate(t, u)
		if len(u.StructuredInputs) > 0 {
			if err := s.validateInputs(t.Category, u.StructuredInputs); err != nil {
				return err
			}
		}
		return s.Tasks.UpdateTask(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func applyTaskUpdate(t *models.Task, u TaskUpdate) {
	if u.Subcategory != nil {
		t.Subcategory = *u.Subcategory
	}
	if u.Description != nil {
		t.Description = strings.TrimSpace(*u.Description)
	}
	if u.Location != nil {
		t.Location = *u.Location
	}
	if u.ScheduledStart != nil {
		t.ScheduledStart = u.ScheduledStart
	}
	if u.FlexibilityMinutes != nil {
		t.FlexibilityMinutes = *u.FlexibilityMinutes
	}
	if u.PricingModel != nil {
		t.PricingModel = *u.PricingModel
	}
	if u.PriceAmount != nil {
		t.PriceAmount = u.PriceAmount
	}
	if u.PriceCurrency != nil {
		t.PriceCurrency = normalizeCurrency(*u.PriceCurrency)
	}
	if len(u.StructuredInputs) > 0 {
		t.StructuredInputs = u.StructuredInputs
	}
	if u.BidMode != nil {
		t.BidMode = *u.BidMode
	}
}

func (s *taskService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Task, error) {
	var t *models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if t, err = s.ownedTask(ctx, tx, actor, id); err != nil {
			return err
		}
		return s.cancelTask(ctx, tx, t, lifecycle.TaskCancelByClient, actor, reason, nil)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// cancelTask moves the task to canceled_by_client and cascades the
// cancellation to every booking that has not finished.
func (s *taskService) cancelTask(ctx context.Context, tx pgx.Tx, t *models.Task, action lifecycle.TaskAction, actor models.Actor, reason string, meta any) error {
	if err := s.applyTask(ctx, tx, t, action, actor, reason, meta); err != nil {
		return err
	}
	taskers, err := s.cancelOpenBookings(ctx, tx, t.ID, actor, reason)
	if err != nil {
		return err
	}
	return s.notify(ctx, tx, execution.NotifyArgs{
		Event:      execution.EventTaskCanceled,
		Recipients: taskers,
		TaskID:     t.ID,
	})
}

func (s *taskService) AcceptByTasker(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		offered := false
		if actor.Role == models.RoleTasker {
			if offered, err = s.Tasks.IsCandidate(ctx, tx, t.ID, actor.ID); err != nil {
				return err
			}
		}
		if !offered {
			return apperr.New(apperr.CodeNotOffered, "task was not offered to you")
		}
		if t.State != models.TaskStateMatching {
			return apperr.InvalidState("task", t.State, "accept")
		}
		active, err := s.Bookings.ActiveBookingForTask(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperr.New(apperr.CodeBookingExists, "task already has an active booking")
		}
		b = &models.Booking{
			TaskID:       t.ID,
			TaskerID:     actor.ID,
			ClientID:     t.ClientID,
			RateAmount:   t.PriceAmount,
			RateCurrency: t.PriceCurrency,
		}
		if err := s.createBooking(ctx, tx, b, actor, map[string]any{"source": "candidate_accept"}); err != nil {
			return err
		}
		if err := s.applyTask(ctx, tx, t, lifecycle.TaskAccept, actor, "", map[string]any{"booking_id": b.ID}); err != nil {
			return err
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventBookingOffered,
			Recipients: []uuid.UUID{t.ClientID},
			TaskID:     t.ID,
			BookingID:  idPtr(b.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("task accepted by tasker", "task_id", id, "tasker_id", actor.ID, "booking_id", b.ID)
	return b, nil
}

func (s *taskService) DeclineByTasker(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if actor.Role != models.RoleTasker {
		return apperr.New(apperr.CodeNotOffered, "task was not offered to you")
	}
	return inTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := s.Tasks.GetTask(ctx, tx, id); err != nil {
			return err
		}
		return s.Tasks.RemoveCandidate(ctx, tx, id, actor.ID)
	})
}

func (s *taskService) InviteTaskers(ctx context.Context, actor models.Actor, id uuid.UUID, taskerIDs []uuid.UUID) (*models.Task, error) {
	if len(taskerIDs) == 0 {
		return nil, apperr.Validation("tasker_ids must not be empty")
	}
	var t *models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if t, err = s.ownedTask(ctx, tx, actor, id); err != nil {
			return err
		}
		return s.offer(ctx, tx, t, candidatesFor(t.ID, taskerIDs), actor)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func candidatesFor(taskID uuid.UUID, taskerIDs []uuid.UUID) []models.TaskCandidate {
	out := make([]models.TaskCandidate, 0, len(taskerIDs))
	for _, id := range taskerIDs {
		out = append(out, models.TaskCandidate{TaskID: taskID, TaskerID: id})
	}
	return out
}

func (s *taskService) StartMatching(ctx context.Context, actor models.Actor, id uuid.UUID, candidates []models.TaskCandidate) (*models.Task, error) {
	if actor.Role != models.RoleSystem && !actor.IsStaff() {
		return nil, apperr.Forbidden("only matching may list candidates")
	}
	var t *models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if t, err = s.Tasks.GetTaskForUpdate(ctx, tx, id); err != nil {
			return err
		}
		for i := range candidates {
			candidates[i].TaskID = t.ID
		}
		return s.offer(ctx, tx, t, candidates, actor)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// offer lists candidates on a posted or matching task, moves a posted task
// into matching and tells the new candidates.
func (s *taskService) offer(ctx context.Context, tx pgx.Tx, t *models.Task, candidates []models.TaskCandidate, actor models.Actor) error {
	if t.State != models.TaskStatePosted && t.State != models.TaskStateMatching {
		return apperr.InvalidState("task", t.State, "offer")
	}
	if err := s.Tasks.AddCandidates(ctx, tx, candidates); err != nil {
		return err
	}
	if t.State == models.TaskStatePosted {
		if err := s.applyTask(ctx, tx, t, lifecycle.TaskStartMatching, actor, "",
			map[string]any{"candidates": len(candidates)}); err != nil {
			return err
		}
	}
	recipients := make([]uuid.UUID, 0, len(candidates))
	for _, c := range candidates {
		recipients = append(recipients, c.TaskerID)
	}
	return s.notify(ctx, tx, execution.NotifyArgs{
		Event:      execution.EventTaskOffered,
		Recipients: recipients,
		TaskID:     t.ID,
	})
}

func (s *taskService) CancelOnBehalfOfClient(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Task, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("staff only")
	}
	var t *models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if t, err = s.Tasks.GetTaskForUpdate(ctx, tx, id); err != nil {
			return err
		}
		return s.cancelTask(ctx, tx, t, lifecycle.TaskForceCancel, actor, reason,
			map[string]any{"on_behalf_of": t.ClientID})
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Warn("task canceled on behalf of client", "task_id", id, "actor_id", actor.ID, "actor_role", actor.Role)
	return t, nil
}

func (s *taskService) Settle(ctx context.Context, actor models.Actor, id uuid.UUID) (*Settlement, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("staff only")
	}
	out := &Settlement{}
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		b, err := s.Bookings.LatestBookingForTask(ctx, tx, t.ID, models.BookingStatusCompleted)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err := s.applyTask(ctx, tx, t, lifecycle.TaskSettle, actor, "", nil); err != nil {
			return err
		}
		out.Task = t
		if b == nil {
			return nil
		}
		out.Payout, err = s.Ledger.RecordPayout(ctx, tx, b, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// canSee decides task visibility. Anything the actor may not see is reported
// as NOT_FOUND so ids cannot be probed.
func (s *taskService) canSee(ctx context.Context, tx pgx.Tx, actor models.Actor, t *models.Task) (bool, error) {
	if actor.IsStaff() || actor.Role == models.RoleSystem || t.ClientID == actor.ID {
		return true, nil
	}
	if actor.Role != models.RoleTasker {
		return false, nil
	}
	if t.BidMode == models.BidModeOpenForBids &&
		(t.State == models.TaskStatePosted || t.State == models.TaskStateMatching) {
		return true, nil
	}
	if ok, err := s.Tasks.IsCandidate(ctx, tx, t.ID, actor.ID); err != nil || ok {
		return ok, err
	}
	bid, err := s.Bids.BidForTasker(ctx, tx, t.ID, actor.ID)
	if err != nil || bid != nil {
		return bid != nil, err
	}
	bookings, err := s.Bookings.ListBookings(ctx, tx, models.BookingFilter{
		TaskID: &t.ID, PartyID: &actor.ID, Page: models.Page{Limit: 1},
	})
	return len(bookings) > 0, err
}

func (s *taskService) visibleTask(ctx context.Context, tx pgx.Tx, actor models.Actor, id uuid.UUID) (*models.Task, error) {
	t, err := s.Tasks.GetTask(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.canSee(ctx, tx, actor, t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NotFound("task")
	}
	return t, nil
}

func (s *taskService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Task, error) {
	var t *models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		t, err = s.visibleTask(ctx, tx, actor, id)
		return err
	})
	return t, err
}

// List scopes the filter to the actor: clients see their own tasks, taskers
// see tasks offered to them or, with bid_mode=open_for_bids, every open task.
func (s *taskService) List(ctx context.Context, actor models.Actor, f models.TaskFilter) (models.List[*models.Task], error) {
	switch {
	case actor.IsStaff():
	case actor.Role == models.RoleClient:
		f.ClientID = &actor.ID
		f.CandidateID = nil
	case actor.Role == models.RoleTasker:
		f.ClientID = nil
		if f.BidMode == models.BidModeOpenForBids {
			f.CandidateID = nil
			f.States = []string{models.TaskStatePosted, models.TaskStateMatching}
		} else {
			f.CandidateID = &actor.ID
		}
	default:
		return models.List[*models.Task]{}, apperr.Forbidden("cannot list tasks")
	}
	f.Page = f.Page.Normalize()
	var items []*models.Task
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		items, err = s.Tasks.ListTasks(ctx, tx, f)
		return err
	})
	if err != nil {
		return models.List[*models.Task]{}, err
	}
	return models.NewList(items, f.Page.Limit, func(t *models.Task) uuid.UUID { return t.ID }), nil
}

func (s *taskService) Events(ctx context.Context, actor models.Actor, id uuid.UUID) ([]*models.Event, error) {
	var events []*models.Event
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := s.visibleTask(ctx, tx, actor, id); err != nil {
			return err
		}
		var err error
		events, err = s.EventLog.ListEvents(ctx, tx, models.AggregateTask, id)
		return err
	})
	return events, err
}

// History merges the task's events with those of all its bookings, oldest
// first. Staff only.
func (s *taskService) History(ctx context.Context, actor models.Actor, id uuid.UUID) ([]*models.Event, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("staff only")
	}
	var events []*models.Event
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := s.Tasks.GetTask(ctx, tx, id); err != nil {
			return err
		}
		var err error
		events, err = s.EventLog.ListTaskHistory(ctx, tx, id)
		return err
	})
	return events, err
}

func (s *taskService) Candidates(ctx context.Context, actor models.Actor, id uuid.UUID) ([]models.TaskCandidate, error) {
	var out []models.TaskCandidate
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		t, err := s.Tasks.GetTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if t.ClientID != actor.ID && !actor.IsStaff() {
			return apperr.NotFound("task")
		}
		out, err = s.Tasks.ListCandidates(ctx, tx, id)
		return err
	})
	return out, err
}
