package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/models"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Append inserts an entry inside the caller's transaction.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO ledger_entries (id, booking_id, task_id, kind, amount, currency, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, e.ID, e.BookingID, e.TaskID, e.Kind, e.Amount, e.Currency, e.ActorID).Scan(&e.CreatedAt)
}

// SumForBooking totals entries of one kind, used to refuse double payouts.
func (r *Repository) SumForBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID, kind string) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(sum(amount), 0)::bigint FROM ledger_entries WHERE booking_id = $1 AND kind = $2
	`, bookingID, kind).Scan(&total)
	return total, err
}

func (r *Repository) ListForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, booking_id, task_id, kind, amount, currency, actor_id, created_at
		FROM ledger_entries WHERE task_id = $1 ORDER BY id
	`, taskID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.LedgerEntry, error) {
		var e models.LedgerEntry
		err := row.Scan(&e.ID, &e.BookingID, &e.TaskID, &e.Kind, &e.Amount, &e.Currency, &e.ActorID, &e.CreatedAt)
		return &e, err
	})
}
