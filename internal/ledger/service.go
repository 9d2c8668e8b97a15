// Package ledger records the money movements the payment collaborator must
// carry out once a booking is settled or a dispute refunded.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

// Store is the persistence the service needs.
type Store interface {
	Append(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	SumForBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID, kind string) (int64, error)
}

type Service interface {
	RecordPayout(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor) (*models.LedgerEntry, error)
	RecordRefund(ctx context.Context, tx pgx.Tx, b *models.Booking, amount int64, actor models.Actor) (*models.LedgerEntry, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

// RecordPayout writes the tasker's payout for the booking's agreed rate, less
// anything already refunded to the client. Call within the settle transaction.
// A booking without an agreed rate, or one refunded in full, has nothing to
// pay out and yields a nil entry.
func (s *service) RecordPayout(ctx context.Context, tx pgx.Tx, b *models.Booking, actor models.Actor) (*models.LedgerEntry, error) {
	if b.RateAmount == nil || *b.RateAmount <= 0 {
		return nil, nil
	}
	paid, err := s.store.SumForBooking(ctx, tx, b.ID, models.LedgerEntryPayout)
	if err != nil {
		return nil, err
	}
	if paid > 0 {
		return nil, apperr.New(apperr.CodeConflict, "booking already paid out")
	}
	refunded, err := s.store.SumForBooking(ctx, tx, b.ID, models.LedgerEntryRefund)
	if err != nil {
		return nil, err
	}
	amount := *b.RateAmount - refunded
	if amount <= 0 {
		return nil, nil
	}
	e := &models.LedgerEntry{
		ID:        uuid.Must(uuid.NewV7()),
		BookingID: b.ID,
		TaskID:    b.TaskID,
		Kind:      models.LedgerEntryPayout,
		Amount:    amount,
		Currency:  b.RateCurrency,
		ActorID:   actor.ActorID(),
	}
	return e, s.store.Append(ctx, tx, e)
}

// RecordRefund writes a refund to the client. The refund cannot exceed the
// agreed rate when one is known.
func (s *service) RecordRefund(ctx context.Context, tx pgx.Tx, b *models.Booking, amount int64, actor models.Actor) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, apperr.Validation("refund amount must be positive")
	}
	if b.RateAmount != nil && amount > *b.RateAmount {
		return nil, apperr.Validation("refund %d exceeds agreed rate %d", amount, *b.RateAmount)
	}
	e := &models.LedgerEntry{
		ID:        uuid.Must(uuid.NewV7()),
		BookingID: b.ID,
		TaskID:    b.TaskID,
		Kind:      models.LedgerEntryRefund,
		Amount:    amount,
		Currency:  b.RateCurrency,
		ActorID:   actor.ActorID(),
	}
	return e, s.store.Append(ctx, tx, e)
}
