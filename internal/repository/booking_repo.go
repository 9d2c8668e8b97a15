package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/models"
)

const bookingColumns = `id, task_id, tasker_id, client_id, status, rate_amount, rate_currency, min_duration_minutes,
	bid_id, cancel_reason, arrived_at, started_at, completed_at, created_at, updated_at`

type BookingRepo struct{}

func NewBookingRepo() *BookingRepo {
	return &BookingRepo{}
}

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(&b.ID, &b.TaskID, &b.TaskerID, &b.ClientID, &b.Status, &b.RateAmount, &b.RateCurrency,
		&b.MinDurationMinutes, &b.BidID, &b.CancelReason, &b.ArrivedAt, &b.StartedAt, &b.CompletedAt,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows, err error) ([]*models.Booking, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// CreateBooking inserts an offered booking. A second active booking for the
// same task trips bookings_one_active_per_task and comes back as BOOKING_EXISTS.
func (r *BookingRepo) CreateBooking(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, task_id, tasker_id, client_id, status, rate_amount, rate_currency,
			min_duration_minutes, bid_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, b.ID, b.TaskID, b.TaskerID, b.ClientID, b.Status, b.RateAmount, b.RateCurrency, b.MinDurationMinutes, b.BidID,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return mapErr(err, "active booking for task")
}

func (r *BookingRepo) GetBooking(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	return b, mapErr(err, "booking")
}

func (r *BookingRepo) GetBookingForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	return b, mapErr(err, "booking")
}

func (r *BookingRepo) UpdateBooking(ctx context.Context, tx pgx.Tx, b *models.Booking) error {
	err := tx.QueryRow(ctx, `
		UPDATE bookings SET status = $2, cancel_reason = $3, arrived_at = $4, started_at = $5,
			completed_at = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, b.ID, b.Status, b.CancelReason, b.ArrivedAt, b.StartedAt, b.CompletedAt).Scan(&b.UpdatedAt)
	return mapErr(err, "booking")
}

// ActiveBookingForTask returns the booking counting towards the one-active
// limit, or nil when there is none.
func (r *BookingRepo) ActiveBookingForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) (*models.Booking, error) {
	return noRowsAsNil(scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE task_id = $1 AND status NOT IN ('canceled', 'disputed')
	`, taskID)))
}

// OpenBookingsForTask locks and returns bookings a task cancellation must
// cascade to.
func (r *BookingRepo) OpenBookingsForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID) ([]*models.Booking, error) {
	return collectBookings(tx.Query(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE task_id = $1 AND status NOT IN ('completed', 'canceled', 'disputed')
		ORDER BY id
		FOR UPDATE
	`, taskID))
}

// LatestBookingForTask returns the newest booking on the task in the given status.
func (r *BookingRepo) LatestBookingForTask(ctx context.Context, tx pgx.Tx, taskID uuid.UUID, status string) (*models.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE task_id = $1 AND status = $2
		ORDER BY id DESC LIMIT 1
	`, taskID, status))
	return b, mapErr(err, "booking")
}

func (r *BookingRepo) ListBookings(ctx context.Context, tx pgx.Tx, f models.BookingFilter) ([]*models.Booking, error) {
	q := Select(`SELECT `+bookingColumns+` FROM bookings`).
		Where(optionalEq("task_id", f.TaskID), In("status", f.Statuses))
	if f.PartyID != nil {
		q.Where(Raw("(client_id = %[1]s OR tasker_id = %[1]s)", *f.PartyID))
	}
	sql, args := q.Paginate("id", f.Page).SQL()
	return collectBookings(tx.Query(ctx, sql, args...))
}
