package execution

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

// Notification events sent to the delivery webhook.
const (
	EventTaskOffered     = "task.offered"
	EventBidSubmitted    = "bid.submitted"
	EventQuoteRequested  = "bid.quote_requested"
	EventBidAccepted     = "bid.accepted"
	EventBidDeclined     = "bid.declined"
	EventBidMessage      = "bid.message"
	EventBookingOffered  = "booking.offered"
	EventBookingStatus   = "booking.status_changed"
	EventBookingCanceled = "booking.canceled"
	EventTaskCanceled    = "task.canceled"
	EventDisputeOpened   = "dispute.opened"
	EventDisputeResolved = "dispute.resolved"
)

// NotifyArgs asks the notification worker to tell recipients about a
// lifecycle change. Delivery itself happens outside this service.
type NotifyArgs struct {
	Event      string          `json:"event"`
	Recipients []uuid.UUID     `json:"recipients"`
	TaskID     uuid.UUID       `json:"task_id"`
	BookingID  *uuid.UUID      `json:"booking_id,omitempty"`
	BidID      *uuid.UUID      `json:"bid_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (NotifyArgs) Kind() string { return "notify" }

// MatchCandidatesArgs asks the matching worker to pick candidates for a
// freshly posted task.
type MatchCandidatesArgs struct {
	TaskID uuid.UUID `json:"task_id"`
}

func (MatchCandidatesArgs) Kind() string { return "match_candidates" }

// Inserter is satisfied by *river.Client[pgx.Tx].
type Inserter interface {
	InsertTx(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

var errQueueNotWired = errors.New("job queue not wired")

// Queue inserts jobs inside the caller's transaction, so a job exists only
// if the lifecycle change that caused it commits. The River client is set
// after construction because its workers depend on the services that
// enqueue through this queue.
type Queue struct {
	mu       sync.RWMutex
	inserter Inserter
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) SetInserter(i Inserter) {
	q.mu.Lock()
	q.inserter = i
	q.mu.Unlock()
}

func (q *Queue) insert(ctx context.Context, tx pgx.Tx, args river.JobArgs, opts *river.InsertOpts) error {
	q.mu.RLock()
	ins := q.inserter
	q.mu.RUnlock()
	if ins == nil {
		return errQueueNotWired
	}
	_, err := ins.InsertTx(ctx, tx, args, opts)
	return err
}

// Notify enqueues a notification. Events without recipients are dropped.
func (q *Queue) Notify(ctx context.Context, tx pgx.Tx, n NotifyArgs) error {
	if len(n.Recipients) == 0 {
		return nil
	}
	return q.insert(ctx, tx, n, nil)
}

// MatchCandidates enqueues candidate matching for a task, at most once per
// task while a previous job is still pending.
func (q *Queue) MatchCandidates(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) error {
	return q.insert(ctx, tx, MatchCandidatesArgs{TaskID: taskID}, &river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true},
	})
}
