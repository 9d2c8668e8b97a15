package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/models"
)

// EventRepo writes the lifecycle log. It deliberately has no update or delete
// methods and the table rejects both with a trigger.
type EventRepo struct{}

func NewEventRepo() *EventRepo {
	return &EventRepo{}
}

const eventColumns = `id, aggregate_type, aggregate_id, task_id, from_state, to_state, actor_id, actor_role,
	reason, metadata, created_at`

func (r *EventRepo) AppendEvent(ctx context.Context, tx pgx.Tx, e *models.Event) error {
	metadata := e.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	return tx.QueryRow(ctx, `
		INSERT INTO lifecycle_events (id, aggregate_type, aggregate_id, task_id, from_state, to_state,
			actor_id, actor_role, reason, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, e.ID, e.AggregateType, e.AggregateID, e.TaskID, e.FromState, e.ToState, e.ActorID, e.ActorRole,
		e.Reason, metadata).Scan(&e.CreatedAt)
}

func collectEvents(rows pgx.Rows, err error) ([]*models.Event, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Event, error) {
		var e models.Event
		err := row.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.TaskID, &e.FromState, &e.ToState,
			&e.ActorID, &e.ActorRole, &e.Reason, &e.Metadata, &e.CreatedAt)
		return &e, err
	})
}

// ListEvents returns one aggregate's timeline, oldest first.
func (r *EventRepo) ListEvents(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID uuid.UUID) ([]*models.Event, error) {
	return collectEvents(tx.Query(ctx, `
		SELECT `+eventColumns+` FROM lifecycle_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY id
	`, aggregateType, aggregateID))
}

// ListTaskHistory merges the task's own events with those of all its
// bookings, oldest first.
func (r *EventRepo) ListTaskHistory(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) ([]*models.Event, error) {
	return collectEvents(tx.Query(ctx, `
		SELECT `+eventColumns+` FROM lifecycle_events
		WHERE task_id = $1
		ORDER BY id
	`, taskID))
}
