package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/lifecycle"
	"github.com/inaiurai/marketplace/internal/models"
)

// DirectBookingParams books a named tasker without going through bids.
type DirectBookingParams struct {
	TaskID             uuid.UUID `json:"task_id" validate:"required"`
	TaskerID           uuid.UUID `json:"tasker_id" validate:"required"`
	RateAmount         *int64    `json:"rate_amount" validate:"omitempty,gt=0"`
	RateCurrency       string    `json:"rate_currency" validate:"omitempty,len=3"`
	MinDurationMinutes int       `json:"min_duration_minutes" validate:"gte=0,lte=1440"`
}

type BookingService interface {
	CreateDirect(ctx context.Context, actor models.Actor, p DirectBookingParams) (*models.Booking, error)
	Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error)
	MarkArrived(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id uuid.UUID, status string, meta map[string]any) (*models.Booking, error)
	Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error)
	List(ctx context.Context, actor models.Actor, f models.BookingFilter) (models.List[*models.Booking], error)
	Events(ctx context.Context, actor models.Actor, id uuid.UUID) ([]*models.Event, error)
}

type bookingService struct {
	*Deps
}

func NewBookingService(deps *Deps) BookingService {
	deps.init()
	return &bookingService{Deps: deps}
}

var _ BookingService = (*bookingService)(nil)

func (s *bookingService) CreateDirect(ctx context.Context, actor models.Actor, p DirectBookingParams) (*models.Booking, error) {
	if err := httpx.Validate(p); err != nil {
		return nil, err
	}
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, p.TaskID)
		if err != nil {
			return err
		}
		if t.ClientID != actor.ID && !actor.IsStaff() {
			return apperr.NotFound("task")
		}
		if t.State != models.TaskStatePosted && t.State != models.TaskStateMatching {
			return apperr.InvalidState("task", t.State, "book")
		}
		active, err := s.Bookings.ActiveBookingForTask(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperr.New(apperr.CodeBookingExists, "task already has an active booking")
		}
		// The task waits in matching until the tasker answers the offer.
		if t.State == models.TaskStatePosted {
			if err := s.applyTask(ctx, tx, t, lifecycle.TaskStartMatching, actor, "direct booking", nil); err != nil {
				return err
			}
		}
		if err := s.Tasks.AddCandidates(ctx, tx, []models.TaskCandidate{{TaskID: t.ID, TaskerID: p.TaskerID}}); err != nil {
			return err
		}
		rate, currency := p.RateAmount, p.RateCurrency
		if rate == nil {
			rate = t.PriceAmount
		}
		if currency == "" {
			currency = t.PriceCurrency
		}
		b = &models.Booking{
			TaskID:             t.ID,
			TaskerID:           p.TaskerID,
			ClientID:           t.ClientID,
			RateAmount:         rate,
			RateCurrency:       normalizeCurrency(currency),
			MinDurationMinutes: p.MinDurationMinutes,
		}
		if err := s.createBooking(ctx, tx, b, actor, map[string]any{"source": "direct"}); err != nil {
			return err
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventBookingOffered,
			Recipients: []uuid.UUID{p.TaskerID},
			TaskID:     t.ID,
			BookingID:  idPtr(b.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// taskerBooking locks the booking and checks the actor is its tasker.
func (s *bookingService) taskerBooking(ctx context.Context, tx pgx.Tx, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.Bookings.GetBookingForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b.TaskerID != actor.ID {
		if b.ClientID == actor.ID || actor.IsStaff() {
			return nil, apperr.Forbidden("only the booked tasker may do this")
		}
		return nil, apperr.NotFound("booking")
	}
	return b, nil
}

// partyBooking locks the booking and checks the actor is a party or staff.
func (s *bookingService) partyBooking(ctx context.Context, tx pgx.Tx, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.Bookings.GetBookingForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsParty(actor) && !actor.IsStaff() {
		return nil, apperr.Forbidden("only the booking's client, its tasker or staff may change it")
	}
	return b, nil
}

func (s *bookingService) statusChanged(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor, event string) error {
	return s.notify(ctx, tx, execution.NotifyArgs{
		Event:      event,
		Recipients: otherParty(b, actor),
		TaskID:     b.TaskID,
		BookingID:  idPtr(b.ID),
		Data:       jsonData(map[string]string{"status": b.Status}),
	})
}

func (s *bookingService) Accept(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if b, err = s.taskerBooking(ctx, tx, actor, id); err != nil {
			return err
		}
		if b.Status != models.BookingStatusOffered {
			return apperr.InvalidState("booking", b.Status, "accept")
		}
		if err := s.setBookingStatus(ctx, tx, b, models.BookingStatusAccepted, actor, "", nil); err != nil {
			return err
		}
		if err := s.mirrorBookingOnTask(ctx, tx, b, actor); err != nil {
			return err
		}
		return s.statusChanged(ctx, tx, b, actor, execution.EventBookingStatus)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *bookingService) Reject(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error) {
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if b, err = s.taskerBooking(ctx, tx, actor, id); err != nil {
			return err
		}
		if b.Status != models.BookingStatusOffered {
			return apperr.InvalidState("booking", b.Status, "reject")
		}
		if err := s.setBookingStatus(ctx, tx, b, models.BookingStatusCanceled, actor, reason,
			map[string]any{"rejected": true}); err != nil {
			return err
		}
		if err := s.reopenTask(ctx, tx, b.TaskID, actor, reason); err != nil {
			return err
		}
		return s.statusChanged(ctx, tx, b, actor, execution.EventBookingCanceled)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MarkArrived records the tasker's arrival. The status stays confirmed; the
// event log still gets a row so the timeline shows it.
func (s *bookingService) MarkArrived(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if b, err = s.taskerBooking(ctx, tx, actor, id); err != nil {
			return err
		}
		if b.ArrivedAt != nil {
			return apperr.New(apperr.CodeAlreadyArrived, "arrival already recorded")
		}
		if b.Status != models.BookingStatusConfirmed {
			return apperr.InvalidState("booking", b.Status, "mark arrived on")
		}
		now := s.now()
		b.ArrivedAt = &now
		if err := s.Bookings.UpdateBooking(ctx, tx, b); err != nil {
			return err
		}
		status := b.Status
		return s.appendEvent(ctx, tx, &models.Event{
			AggregateType: models.AggregateBooking,
			AggregateID:   b.ID,
			TaskID:        b.TaskID,
			FromState:     &status,
			ToState:       status,
			Reason:        "arrived",
		}, actor, map[string]any{"arrived_at": now})
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateStatus is the generic transition entry point. The booking table
// decides legality; accepted, in_progress, completed and disputed are
// mirrored onto the task, and a cancellation puts the task back into matching.
func (s *bookingService) UpdateStatus(ctx context.Context, actor models.Actor, id uuid.UUID, status string, meta map[string]any) (*models.Booking, error) {
	if !lifecycle.IsBookingStatus(status) {
		return nil, apperr.Validation("unknown booking status %q", status)
	}
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if b, err = s.partyBooking(ctx, tx, actor, id); err != nil {
			return err
		}
		if err := lifecycle.ValidateBookingTransition(b.Status, status); err != nil {
			return err
		}
		reason, _ := meta["reason"].(string)
		if err := s.setBookingStatus(ctx, tx, b, status, actor, reason, meta); err != nil {
			return err
		}
		if status == models.BookingStatusCanceled {
			if err := s.reopenTask(ctx, tx, b.TaskID, actor, reason); err != nil {
				return err
			}
		} else if err := s.mirrorBookingOnTask(ctx, tx, b, actor); err != nil {
			return err
		}
		return s.statusChanged(ctx, tx, b, actor, execution.EventBookingStatus)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("booking status changed", "booking_id", id, "status", status, "actor_role", actor.Role)
	return b, nil
}

// Cancel ends an unfinished booking and its task. Which canceled state the
// task lands in depends on who pulled out.
func (s *bookingService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Booking, error) {
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if b, err = s.partyBooking(ctx, tx, actor, id); err != nil {
			return err
		}
		if err := lifecycle.CanCancelBooking(b.Status); err != nil {
			return err
		}
		if err := s.setBookingStatus(ctx, tx, b, models.BookingStatusCanceled, actor, reason, nil); err != nil {
			return err
		}
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, b.TaskID)
		if err != nil {
			return err
		}
		if !lifecycle.IsTerminalTask(t.State) {
			action := lifecycle.TaskCancelByClient
			if actor.ID == b.TaskerID {
				action = lifecycle.TaskCancelByTasker
			}
			if err := s.applyTask(ctx, tx, t, action, actor, reason, map[string]any{"booking_id": b.ID}); err != nil {
				return err
			}
		}
		return s.statusChanged(ctx, tx, b, actor, execution.EventBookingCanceled)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *bookingService) visibleBooking(ctx context.Context, tx pgx.Tx, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.Bookings.GetBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsParty(actor) && !actor.IsStaff() {
		return nil, apperr.NotFound("booking")
	}
	return b, nil
}

func (s *bookingService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Booking, error) {
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		b, err = s.visibleBooking(ctx, tx, actor, id)
		return err
	})
	return b, err
}

func (s *bookingService) List(ctx context.Context, actor models.Actor, f models.BookingFilter) (models.List[*models.Booking], error) {
	if !actor.IsStaff() {
		f.PartyID = &actor.ID
	}
	f.Page = f.Page.Normalize()
	var items []*models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		items, err = s.Bookings.ListBookings(ctx, tx, f)
		return err
	})
	if err != nil {
		return models.List[*models.Booking]{}, err
	}
	return models.NewList(items, f.Page.Limit, func(b *models.Booking) uuid.UUID { return b.ID }), nil
}

func (s *bookingService) Events(ctx context.Context, actor models.Actor, id uuid.UUID) ([]*models.Event, error) {
	var events []*models.Event
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := s.visibleBooking(ctx, tx, actor, id); err != nil {
			return err
		}
		var err error
		events, err = s.EventLog.ListEvents(ctx, tx, models.AggregateBooking, id)
		return err
	})
	return events, err
}
