package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/models"
)

const disputeColumns = `id, booking_id, opened_by, reason, amount_in_question, currency, status, evidence,
	resolution, refund_amount, resolved_by, resolved_at, created_at`

type DisputeRepo struct{}

func NewDisputeRepo() *DisputeRepo {
	return &DisputeRepo{}
}

func scanDispute(row pgx.Row) (*models.Dispute, error) {
	var d models.Dispute
	err := row.Scan(&d.ID, &d.BookingID, &d.OpenedBy, &d.Reason, &d.AmountInQuestion, &d.Currency, &d.Status,
		&d.Evidence, &d.Resolution, &d.RefundAmount, &d.ResolvedBy, &d.ResolvedAt, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	if d.Evidence == nil {
		d.Evidence = []models.Evidence{}
	}
	return &d, nil
}

// CreateDispute inserts an open dispute. One dispute per booking; a second
// comes back as DISPUTE_EXISTS.
func (r *DisputeRepo) CreateDispute(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO disputes (id, booking_id, opened_by, reason, amount_in_question, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, d.ID, d.BookingID, d.OpenedBy, d.Reason, d.AmountInQuestion, d.Currency, d.Status).Scan(&d.CreatedAt)
	return mapErr(err, "dispute")
}

func (r *DisputeRepo) GetDispute(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	d, err := scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1`, id))
	return d, mapErr(err, "dispute")
}

func (r *DisputeRepo) GetDisputeForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Dispute, error) {
	d, err := scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id = $1 FOR UPDATE`, id))
	return d, mapErr(err, "dispute")
}

// DisputeForBooking returns the booking's dispute or nil.
func (r *DisputeRepo) DisputeForBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Dispute, error) {
	return noRowsAsNil(scanDispute(tx.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE booking_id = $1
	`, bookingID)))
}

// AppendEvidence concatenates one entry onto the evidence array. Earlier
// entries are never rewritten.
func (r *DisputeRepo) AppendEvidence(ctx context.Context, tx pgx.Tx, id uuid.UUID, ev models.Evidence) error {
	entry, err := json.Marshal([]models.Evidence{ev})
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE disputes SET evidence = evidence || $2::jsonb WHERE id = $1 AND status = 'open'
	`, id, entry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return mapErr(pgx.ErrNoRows, "open dispute")
	}
	return nil
}

func (r *DisputeRepo) ResolveDispute(ctx context.Context, tx pgx.Tx, d *models.Dispute) error {
	_, err := tx.Exec(ctx, `
		UPDATE disputes SET status = $2, resolution = $3, refund_amount = $4, resolved_by = $5, resolved_at = $6
		WHERE id = $1
	`, d.ID, d.Status, d.Resolution, d.RefundAmount, d.ResolvedBy, d.ResolvedAt)
	return err
}
