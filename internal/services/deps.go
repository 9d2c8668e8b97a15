package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/ledger"
	"github.com/inaiurai/marketplace/internal/lifecycle"
	"github.com/inaiurai/marketplace/internal/models"
)

// TaskStore is the task persistence the managers need.
type TaskStore interface {
	CreateTask(ctx context.Context, tx pgx.Tx, t *models.Task) error
	GetTask(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	GetTaskForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	UpdateTask(ctx context.Context, tx pgx.Tx, t *models.Task) error
	ListTasks(ctx context.Context, tx pgx.Tx, f models.TaskFilter) ([]*models.Task, error)
	AddCandidates(ctx context.Context, tx pgx.Tx, candidates []models.TaskCandidate) error
	IsCandidate(ctx context.Context, tx pgx.Tx, taskID, taskerID uuid.UUID) (bool, error)
	RemoveCandidate(ctx context.Context, tx pgx.Tx, taskID, taskerID uuid.UUID) error
	ListCandidates(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) ([]models.TaskCandidate, error)
}

type BookingStore interface {
	CreateBooking(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	GetBooking(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error)
	GetBookingForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error)
	UpdateBooking(ctx context.Context, tx pgx.Tx, b *models.Booking) error
	ActiveBookingForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Booking, error)
	OpenBookingsForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) ([]*models.Booking, error)
	LatestBookingForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, status string) (*models.Booking, error)
	ListBookings(ctx context.Context, tx pgx.Tx, f models.BookingFilter) ([]*models.Booking, error)
}

type BidStore interface {
	CreateBid(ctx context.Context, tx pgx.Tx, b *models.Bid) error
	GetBid(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Bid, error)
	GetBidForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Bid, error)
	BidForTasker(ctx context.Context, tx pgx.Tx, taskID, taskerID uuid.UUID) (*models.Bid, error)
	UpdateBid(ctx context.Context, tx pgx.Tx, b *models.Bid) error
	DeclineOtherPendingBids(ctx context.Context, tx pgx.Tx, taskID, keepID uuid.UUID) ([]uuid.UUID, error)
	ListBidsForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, p models.Page) ([]*models.Bid, error)
	CreateMessage(ctx context.Context, tx pgx.Tx, m *models.BidMessage) error
	ListMessages(ctx context.Context, tx pgx.Tx, bidID uuid.UUID, p models.Page) ([]*models.BidMessage, error)
}

// EventStore appends to the lifecycle log. There is no way to change a row.
type EventStore interface {
	AppendEvent(ctx context.Context, tx pgx.Tx, e *models.Event) error
	ListEvents(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID uuid.UUID) ([]*models.Event, error)
	ListTaskHistory(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) ([]*models.Event, error)
}

type DisputeStore interface {
	CreateDispute(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
	GetDispute(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	GetDisputeForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error)
	DisputeForBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Dispute, error)
	AppendEvidence(ctx context.Context, tx pgx.Tx, id uuid.UUID, ev models.Evidence) error
	ResolveDispute(ctx context.Context, tx pgx.Tx, d *models.Dispute) error
}

type ReviewStore interface {
	CreateReview(ctx context.Context, tx pgx.Tx, rv *models.Review) error
	ReviewForBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Review, error)
	UpdateTaskerRating(ctx context.Context, tx pgx.Tx, taskerID uuid.UUID) error
}

// JobQueue enqueues side effects inside the caller's transaction.
type JobQueue interface {
	Notify(ctx context.Context, tx pgx.Tx, n execution.NotifyArgs) error
	MatchCandidates(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error
}

// Deps bundles what the lifecycle managers share. Every manager writes
// state and its event through the helpers below so the two never diverge.
type Deps struct {
	DB       TxBeginner
	Tasks    TaskStore
	Bookings BookingStore
	Bids     BidStore
	EventLog EventStore
	Disputes DisputeStore
	Reviews  ReviewStore
	Ledger   ledger.Service
	Jobs     JobQueue
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d *Deps) init() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

func (d *Deps) now() time.Time {
	return d.Now().UTC()
}

func (d *Deps) appendEvent(ctx context.Context, tx pgx.Tx, e *models.Event, actor models.Actor, meta any) error {
	e.ID = newID()
	e.ActorID = actor.ActorID()
	e.ActorRole = actor.Role
	if meta != nil {
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		e.Metadata = raw
	}
	return d.EventLog.AppendEvent(ctx, tx, e)
}

// applyTask moves t along action, persists it and logs the transition.
func (d *Deps) applyTask(ctx context.Context, tx pgx.Tx, t *models.Task, action lifecycle.TaskAction, actor models.Actor, reason string, meta any) error {
	next, err := lifecycle.NextTaskState(t.State, action)
	if err != nil {
		return err
	}
	from := t.State
	t.State = next
	if err := d.Tasks.UpdateTask(ctx, tx, t); err != nil {
		return err
	}
	return d.appendEvent(ctx, tx, &models.Event{
		AggregateType: models.AggregateTask,
		AggregateID:   t.ID,
		TaskID:        t.ID,
		FromState:     &from,
		ToState:       next,
		Reason:        reason,
	}, actor, meta)
}

// mirrorBookingOnTask carries accepted, in_progress, completed and disputed
// over to the parent task. A task already in the mirrored state is left alone.
func (d *Deps) mirrorBookingOnTask(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor) error {
	action, ok := lifecycle.TaskStateForBooking(b.Status)
	if !ok {
		return nil
	}
	t, err := d.Tasks.GetTaskForUpdate(ctx, tx, b.TaskID)
	if err != nil {
		return err
	}
	if t.State == lifecycle.TargetState(action) {
		return nil
	}
	return d.applyTask(ctx, tx, t, action, actor, "", map[string]any{"booking_id": b.ID})
}

// reopenTask puts a task whose booking fell through back into matching so
// other taskers can still act on it. Terminal, posted and matching tasks
// are left as they are.
func (d *Deps) reopenTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, actor models.Actor, reason string) error {
	t, err := d.Tasks.GetTaskForUpdate(ctx, tx, taskID)
	if err != nil {
		return err
	}
	if lifecycle.IsTerminalTask(t.State) || !lifecycle.CanTask(t.State, lifecycle.TaskReopen) {
		return nil
	}
	return d.applyTask(ctx, tx, t, lifecycle.TaskReopen, actor, reason, nil)
}

// setBookingStatus writes a new booking status with its event. Callers
// check legality first: either the transition table or an operation guard.
func (d *Deps) setBookingStatus(ctx context.Context, tx pgx.Tx, b *models.Booking, to string, actor models.Actor, reason string, meta any) error {
	from := b.Status
	now := d.now()
	b.Status = to
	switch to {
	case models.BookingStatusInProgress:
		if b.StartedAt == nil {
			b.StartedAt = &now
		}
	case models.BookingStatusCompleted:
		if b.CompletedAt == nil {
			b.CompletedAt = &now
		}
	case models.BookingStatusCanceled:
		b.CancelReason = reason
	}
	if err := d.Bookings.UpdateBooking(ctx, tx, b); err != nil {
		return err
	}
	return d.appendEvent(ctx, tx, &models.Event{
		AggregateType: models.AggregateBooking,
		AggregateID:   b.ID,
		TaskID:        b.TaskID,
		FromState:     &from,
		ToState:       to,
		Reason:        reason,
	}, actor, meta)
}

// createBooking inserts an offered booking and its first event.
func (d *Deps) createBooking(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor, meta any) error {
	b.ID = newID()
	b.Status = models.BookingStatusOffered
	if err := d.Bookings.CreateBooking(ctx, tx, b); err != nil {
		return err
	}
	return d.appendEvent(ctx, tx, &models.Event{
		AggregateType: models.AggregateBooking,
		AggregateID:   b.ID,
		TaskID:        b.TaskID,
		ToState:       b.Status,
	}, actor, meta)
}

// cancelOpenBookings cascades a task cancellation to its unfinished bookings
// and returns the taskers that need to hear about it.
func (d *Deps) cancelOpenBookings(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, actor models.Actor, reason string) ([]uuid.UUID, error) {
	open, err := d.Bookings.OpenBookingsForTask(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	taskers := make([]uuid.UUID, 0, len(open))
	for _, b := range open {
		if err := d.setBookingStatus(ctx, tx, b, models.BookingStatusCanceled, actor, reason,
			map[string]any{"cascade": "task_canceled"}); err != nil {
			return nil, err
		}
		taskers = append(taskers, b.TaskerID)
	}
	return taskers, nil
}

func (d *Deps) notify(ctx context.Context, tx pgx.Tx, n execution.NotifyArgs) error {
	return d.Jobs.Notify(ctx, tx, n)
}

// otherParty returns the booking participant who is not the actor. Staff
// actions notify both sides.
func otherParty(b *models.Booking, actor models.Actor) []uuid.UUID {
	switch actor.ID {
	case b.ClientID:
		return []uuid.UUID{b.TaskerID}
	case b.TaskerID:
		return []uuid.UUID{b.ClientID}
	}
	return []uuid.UUID{b.ClientID, b.TaskerID}
}

func idPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func jsonData(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
