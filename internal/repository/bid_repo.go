package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/models"
)

const bidColumns = `id, task_id, tasker_id, amount, currency, min_duration_minutes, message, proposed_start,
	status, created_at, updated_at`

type BidRepo struct{}

func NewBidRepo() *BidRepo {
	return &BidRepo{}
}

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.ID, &b.TaskID, &b.TaskerID, &b.Amount, &b.Currency, &b.MinDurationMinutes, &b.Message,
		&b.ProposedStart, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBid inserts a bid. The (task, tasker) pair is unique; a duplicate
// comes back as BID_EXISTS.
func (r *BidRepo) CreateBid(ctx context.Context, tx pgx.Tx, b *models.Bid) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO task_bids (id, task_id, tasker_id, amount, currency, min_duration_minutes, message,
			proposed_start, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, b.ID, b.TaskID, b.TaskerID, b.Amount, b.Currency, b.MinDurationMinutes, b.Message, b.ProposedStart, b.Status,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return mapErr(err, "bid")
}

func (r *BidRepo) GetBid(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Bid, error) {
	b, err := scanBid(tx.QueryRow(ctx, `SELECT `+bidColumns+` FROM task_bids WHERE id = $1`, id))
	return b, mapErr(err, "bid")
}

func (r *BidRepo) GetBidForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Bid, error) {
	b, err := scanBid(tx.QueryRow(ctx, `SELECT `+bidColumns+` FROM task_bids WHERE id = $1 FOR UPDATE`, id))
	return b, mapErr(err, "bid")
}

// BidForTasker returns the tasker's bid on the task, locked, or nil.
func (r *BidRepo) BidForTasker(ctx context.Context, tx pgx.Tx, taskID, taskerID uuid.UUID) (*models.Bid, error) {
	return noRowsAsNil(scanBid(tx.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM task_bids WHERE task_id = $1 AND tasker_id = $2 FOR UPDATE
	`, taskID, taskerID)))
}

func (r *BidRepo) UpdateBid(ctx context.Context, tx pgx.Tx, b *models.Bid) error {
	err := tx.QueryRow(ctx, `
		UPDATE task_bids SET amount = $2, currency = $3, min_duration_minutes = $4, message = $5,
			proposed_start = $6, status = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, b.Amount, b.Currency, b.MinDurationMinutes, b.Message, b.ProposedStart, b.Status).Scan(&b.UpdatedAt)
	return mapErr(err, "bid")
}

// DeclineOtherPendingBids declines every pending bid on the task except
// keepID and returns the taskers affected.
func (r *BidRepo) DeclineOtherPendingBids(ctx context.Context, tx pgx.Tx, taskID, keepID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := tx.Query(ctx, `
		UPDATE task_bids SET status = 'declined', updated_at = now()
		WHERE task_id = $1 AND id <> $2 AND status = 'pending'
		RETURNING tasker_id
	`, taskID, keepID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (r *BidRepo) ListBidsForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, p models.Page) ([]*models.Bid, error) {
	sql, args := Select(`SELECT `+bidColumns+` FROM task_bids`).
		Where(Eq("task_id", taskID)).
		Paginate("id", p).
		SQL()
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *BidRepo) CreateMessage(ctx context.Context, tx pgx.Tx, m *models.BidMessage) error {
	return tx.QueryRow(ctx, `
		INSERT INTO bid_messages (id, bid_id, sender_id, kind, text, media_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, m.ID, m.BidID, m.SenderID, m.Kind, m.Text, m.MediaURL).Scan(&m.CreatedAt)
}

func (r *BidRepo) ListMessages(ctx context.Context, tx pgx.Tx, bidID uuid.UUID, p models.Page) ([]*models.BidMessage, error) {
	sql, args := Select(`SELECT id, bid_id, sender_id, kind, text, media_url, created_at FROM bid_messages`).
		Where(Eq("bid_id", bidID)).
		Paginate("id", p).
		SQL()
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.BidMessage, error) {
		var m models.BidMessage
		err := row.Scan(&m.ID, &m.BidID, &m.SenderID, &m.Kind, &m.Text, &m.MediaURL, &m.CreatedAt)
		return &m, err
	})
}
