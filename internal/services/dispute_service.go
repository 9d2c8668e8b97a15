package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/lifecycle"
	"github.com/inaiurai/marketplace/internal/models"
)

type OpenDisputeParams struct {
	BookingID        uuid.UUID `json:"booking_id" validate:"required"`
	Reason           string    `json:"reason" validate:"required,max=2000"`
	AmountInQuestion *int64    `json:"amount_in_question" validate:"omitempty,gt=0"`
}

type ResolveParams struct {
	Resolution   json.RawMessage `json:"resolution" validate:"required"`
	RefundAmount *int64          `json:"refund_amount" validate:"omitempty,gte=0"`
}

type DisputeService interface {
	Open(ctx context.Context, actor models.Actor, p OpenDisputeParams) (*models.Dispute, error)
	AddEvidence(ctx context.Context, actor models.Actor, id uuid.UUID, content string) (*models.Dispute, error)
	Resolve(ctx context.Context, actor models.Actor, id uuid.UUID, p ResolveParams) (*models.Dispute, error)
	Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Dispute, error)
}

type disputeService struct {
	*Deps
}

func NewDisputeService(deps *Deps) DisputeService {
	deps.init()
	return &disputeService{Deps: deps}
}

var _ DisputeService = (*disputeService)(nil)

func (s *disputeService) Open(ctx context.Context, actor models.Actor, p OpenDisputeParams) (*models.Dispute, error) {
	if err := httpx.Validate(p); err != nil {
		return nil, err
	}
	var d *models.Dispute
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		b, err := s.Bookings.GetBookingForUpdate(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		if !b.IsParty(actor) {
			return apperr.Forbidden("only the booking's client or tasker may open a dispute")
		}
		existing, err := s.Disputes.DisputeForBooking(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.CodeDisputeExists, "booking already has a dispute")
		}
		if err := lifecycle.CanDisputeBooking(b.Status); err != nil {
			return err
		}
		d = &models.Dispute{
			ID:               newID(),
			BookingID:        b.ID,
			OpenedBy:         actor.ID,
			Reason:           strings.TrimSpace(p.Reason),
			AmountInQuestion: p.AmountInQuestion,
			Currency:         b.RateCurrency,
			Status:           models.DisputeStatusOpen,
			Evidence:         []models.Evidence{},
		}
		if err := s.Disputes.CreateDispute(ctx, tx, d); err != nil {
			return err
		}
		meta := map[string]any{"dispute_id": d.ID}
		if err := s.setBookingStatus(ctx, tx, b, models.BookingStatusDisputed, actor, d.Reason, meta); err != nil {
			return err
		}
		if err := s.mirrorBookingOnTask(ctx, tx, b, actor); err != nil {
			return err
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventDisputeOpened,
			Recipients: otherParty(b, actor),
			TaskID:     b.TaskID,
			BookingID:  idPtr(b.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("dispute opened", "dispute_id", d.ID, "booking_id", d.BookingID, "opened_by", actor.ID)
	return d, nil
}

func (s *disputeService) AddEvidence(ctx context.Context, actor models.Actor, id uuid.UUID, content string) (*models.Dispute, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("evidence content is required")
	}
	var d *models.Dispute
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if d, err = s.Disputes.GetDisputeForUpdate(ctx, tx, id); err != nil {
			return err
		}
		b, err := s.Bookings.GetBooking(ctx, tx, d.BookingID)
		if err != nil {
			return err
		}
		if !b.IsParty(actor) && !actor.IsStaff() {
			return apperr.Forbidden("only the parties and staff may add evidence")
		}
		if d.Status != models.DisputeStatusOpen {
			return apperr.InvalidState("dispute", d.Status, "add evidence to")
		}
		ev := models.Evidence{UserID: actor.ID, Content: content, CreatedAt: s.now()}
		if err := s.Disputes.AppendEvidence(ctx, tx, d.ID, ev); err != nil {
			return err
		}
		d.Evidence = append(d.Evidence, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Resolve closes an open dispute. A booking still disputed is forced to
// completed and its task follows; a refund is handed to the ledger.
func (s *disputeService) Resolve(ctx context.Context, actor models.Actor, id uuid.UUID, p ResolveParams) (*models.Dispute, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("staff only")
	}
	if err := httpx.Validate(p); err != nil {
		return nil, err
	}
	if !json.Valid(p.Resolution) {
		return nil, apperr.Validation("resolution must be valid JSON")
	}
	var d *models.Dispute
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if d, err = s.Disputes.GetDisputeForUpdate(ctx, tx, id); err != nil {
			return err
		}
		if d.Status != models.DisputeStatusOpen {
			return apperr.InvalidState("dispute", d.Status, "resolve")
		}
		b, err := s.Bookings.GetBookingForUpdate(ctx, tx, d.BookingID)
		if err != nil {
			return err
		}
		if p.RefundAmount != nil && *p.RefundAmount > 0 {
			if _, err := s.Ledger.RecordRefund(ctx, tx, b, *p.RefundAmount, actor); err != nil {
				return err
			}
		}
		now := s.now()
		d.Status = models.DisputeStatusResolved
		d.Resolution = p.Resolution
		d.RefundAmount = p.RefundAmount
		d.ResolvedBy = actor.ActorID()
		d.ResolvedAt = &now
		if err := s.Disputes.ResolveDispute(ctx, tx, d); err != nil {
			return err
		}
		meta := map[string]any{"dispute_id": d.ID}
		if b.Status == models.BookingStatusDisputed {
			if err := s.setBookingStatus(ctx, tx, b, models.BookingStatusCompleted, actor, "dispute resolved", meta); err != nil {
				return err
			}
		}
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, b.TaskID)
		if err != nil {
			return err
		}
		if t.State == models.TaskStateDisputed {
			if err := s.applyTask(ctx, tx, t, lifecycle.TaskResolve, actor, "dispute resolved", meta); err != nil {
				return err
			}
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventDisputeResolved,
			Recipients: []uuid.UUID{b.ClientID, b.TaskerID},
			TaskID:     b.TaskID,
			BookingID:  idPtr(b.ID),
			Data:       d.Resolution,
		})
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("dispute resolved", "dispute_id", id, "actor_id", actor.ID, "actor_role", actor.Role)
	return d, nil
}

func (s *disputeService) Get(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Dispute, error) {
	var d *models.Dispute
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if d, err = s.Disputes.GetDispute(ctx, tx, id); err != nil {
			return err
		}
		b, err := s.Bookings.GetBooking(ctx, tx, d.BookingID)
		if err != nil {
			return err
		}
		if !b.IsParty(actor) && !actor.IsStaff() {
			return apperr.NotFound("dispute")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
