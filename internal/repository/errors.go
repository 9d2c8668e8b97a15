package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inaiurai/marketplace/internal/apperr"
)

// Unique constraints whose violation has a domain meaning. Other violations
// are left to the HTTP boundary to map to CONFLICT.
var uniqueConstraintCodes = map[string]string{
	"bookings_one_active_per_task": apperr.CodeBookingExists,
	"task_bids_task_tasker_key":    apperr.CodeBidExists,
	"disputes_booking_key":         apperr.CodeDisputeExists,
	"reviews_booking_key":          apperr.CodeReviewExists,
}

// mapErr turns pgx.ErrNoRows into NOT_FOUND for resource and known unique
// violations into their domain codes.
func mapErr(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(resource)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if code, ok := uniqueConstraintCodes[pgErr.ConstraintName]; ok {
			return apperr.Wrap(code, err, resource+" already exists")
		}
	}
	return err
}

// noRowsAsNil is used by lookups where absence is an ordinary answer.
func noRowsAsNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}
