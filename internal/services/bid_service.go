package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/execution"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/lifecycle"
	"github.com/inaiurai/marketplace/internal/models"
	"github.com/inaiurai/marketplace/internal/ratelimit"
)

type BidParams struct {
	TaskID             uuid.UUID  `json:"task_id" validate:"required"`
	Amount             *int64     `json:"amount" validate:"omitempty,gt=0"`
	Currency           string     `json:"currency" validate:"omitempty,len=3"`
	MinDurationMinutes int        `json:"min_duration_minutes" validate:"gte=0,lte=1440"`
	Message            string     `json:"message" validate:"max=2000"`
	ProposedStart      *time.Time `json:"proposed_start"`
}

type MessageParams struct {
	Kind     string `json:"kind" validate:"required,oneof=text voice image video"`
	Text     string `json:"text" validate:"max=4000"`
	MediaURL string `json:"media_url" validate:"omitempty,url"`
}

type BidService interface {
	SubmitOrUpdate(ctx context.Context, actor models.Actor, p BidParams) (*models.Bid, error)
	RequestQuote(ctx context.Context, actor models.Actor, taskID, taskerID uuid.UUID) (*models.Bid, error)
	SendMessage(ctx context.Context, actor models.Actor, bidID uuid.UUID, p MessageParams) (*models.BidMessage, error)
	AcceptBid(ctx context.Context, actor models.Actor, bidID uuid.UUID) (*models.Booking, error)
	DeclineBid(ctx context.Context, actor models.Actor, bidID uuid.UUID) (*models.Bid, error)
	ListForTask(ctx context.Context, actor models.Actor, taskID uuid.UUID, p models.Page) (models.List[*models.Bid], error)
	ListMessages(ctx context.Context, actor models.Actor, bidID uuid.UUID, p models.Page) (models.List[*models.BidMessage], error)
}

type bidService struct {
	*Deps
	limiter ratelimit.Limiter
}

// NewBidService throttles negotiation messages through limiter, keyed per
// (sender, bid).
func NewBidService(deps *Deps, limiter ratelimit.Limiter) BidService {
	deps.init()
	return &bidService{Deps: deps, limiter: limiter}
}

var _ BidService = (*bidService)(nil)

func (s *bidService) SubmitOrUpdate(ctx context.Context, actor models.Actor, p BidParams) (*models.Bid, error) {
	if actor.Role != models.RoleTasker {
		return nil, apperr.Forbidden("only taskers bid")
	}
	if err := httpx.Validate(p); err != nil {
		return nil, err
	}
	var bid *models.Bid
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, p.TaskID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanBidOnTask(t.State); err != nil {
			return err
		}
		if bid, err = s.Bids.BidForTasker(ctx, tx, t.ID, actor.ID); err != nil {
			return err
		}
		if bid == nil && t.BidMode == models.BidModeInviteOnly {
			invited, err := s.Tasks.IsCandidate(ctx, tx, t.ID, actor.ID)
			if err != nil {
				return err
			}
			if !invited {
				return apperr.New(apperr.CodeNotOffered, "task is invite only")
			}
		}
		currency := p.Currency
		if currency == "" {
			currency = t.PriceCurrency
		}
		if bid != nil {
			if err := lifecycle.CanUpdateBid(bid.Status); err != nil {
				return err
			}
			bid.Amount = p.Amount
			bid.Currency = normalizeCurrency(currency)
			bid.MinDurationMinutes = p.MinDurationMinutes
			bid.Message = p.Message
			bid.ProposedStart = p.ProposedStart
			bid.Status = models.BidStatusPending
			err = s.Bids.UpdateBid(ctx, tx, bid)
		} else {
			bid = &models.Bid{
				ID:                 newID(),
				TaskID:             t.ID,
				TaskerID:           actor.ID,
				Amount:             p.Amount,
				Currency:           normalizeCurrency(currency),
				MinDurationMinutes: p.MinDurationMinutes,
				Message:            p.Message,
				ProposedStart:      p.ProposedStart,
				Status:             models.BidStatusPending,
			}
			err = s.Bids.CreateBid(ctx, tx, bid)
		}
		if err != nil {
			return err
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventBidSubmitted,
			Recipients: []uuid.UUID{t.ClientID},
			TaskID:     t.ID,
			BidID:      idPtr(bid.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func (s *bidService) RequestQuote(ctx context.Context, actor models.Actor, taskID, taskerID uuid.UUID) (*models.Bid, error) {
	if taskerID == uuid.Nil {
		return nil, apperr.Validation("tasker_id is required")
	}
	var bid *models.Bid
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.ClientID != actor.ID {
			return apperr.NotFound("task")
		}
		if err := lifecycle.CanBidOnTask(t.State); err != nil {
			return err
		}
		existing, err := s.Bids.BidForTasker(ctx, tx, t.ID, taskerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.CodeBidExists, "tasker already has a bid on this task")
		}
		bid = &models.Bid{
			ID:       newID(),
			TaskID:   t.ID,
			TaskerID: taskerID,
			Currency: t.PriceCurrency,
			Status:   models.BidStatusRequested,
		}
		if err := s.Bids.CreateBid(ctx, tx, bid); err != nil {
			return err
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventQuoteRequested,
			Recipients: []uuid.UUID{taskerID},
			TaskID:     t.ID,
			BidID:      idPtr(bid.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

func validateMessage(p MessageParams) error {
	if err := httpx.Validate(p); err != nil {
		return err
	}
	if p.Kind == models.MessageKindText {
		if strings.TrimSpace(p.Text) == "" {
			return apperr.Validation("text messages need text")
		}
		return nil
	}
	if p.MediaURL == "" {
		return apperr.Validation("%s messages need a media_url", p.Kind)
	}
	return nil
}

// bidParties loads the bid and its task, and checks the actor is one of
// the two sides of the negotiation.
func (s *bidService) bidParties(ctx context.Context, tx pgx.Tx, actor models.Actor, bidID uuid.UUID) (*models.Bid, *models.Task, error) {
	bid, err := s.Bids.GetBid(ctx, tx, bidID)
	if err != nil {
		return nil, nil, err
	}
	t, err := s.Tasks.GetTask(ctx, tx, bid.TaskID)
	if err != nil {
		return nil, nil, err
	}
	if actor.ID != bid.TaskerID && actor.ID != t.ClientID {
		return nil, nil, apperr.Forbidden("only the bid's tasker and the task's client may negotiate")
	}
	return bid, t, nil
}

func (s *bidService) SendMessage(ctx context.Context, actor models.Actor, bidID uuid.UUID, p MessageParams) (*models.BidMessage, error) {
	var msg *models.BidMessage
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		bid, t, err := s.bidParties(ctx, tx, actor, bidID)
		if err != nil {
			return err
		}
		if err := lifecycle.CanNegotiate(bid.Status); err != nil {
			return err
		}
		if err := validateMessage(p); err != nil {
			return err
		}
		msg = &models.BidMessage{
			ID:       newID(),
			BidID:    bid.ID,
			SenderID: actor.ID,
			Kind:     p.Kind,
			Text:     p.Text,
			MediaURL: p.MediaURL,
		}
		if err := s.Bids.CreateMessage(ctx, tx, msg); err != nil {
			return err
		}
		recipient := bid.TaskerID
		if actor.ID == bid.TaskerID {
			recipient = t.ClientID
		}
		if err := s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventBidMessage,
			Recipients: []uuid.UUID{recipient},
			TaskID:     t.ID,
			BidID:      idPtr(bid.ID),
		}); err != nil {
			return err
		}
		return s.allowMessage(ctx, actor, bid.ID)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// allowMessage takes a slot in the sender's window for this bid. It runs
// once the message and its notification are written, so failed sends do not
// count; a denial rolls the message back. A commit that fails after this
// point still holds its slot until the window slides past it.
func (s *bidService) allowMessage(ctx context.Context, actor models.Actor, bidID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "bidmsg:"+actor.ID.String()+":"+bidID.String())
	if err != nil {
		s.Logger.Warn("message rate limiter failed, allowing", "bid_id", bidID, "error", err)
		return nil
	}
	if !ok {
		return apperr.New(apperr.CodeRateLimited, "too many messages on this bid, slow down")
	}
	return nil
}

// AcceptBid turns a pending bid into an offered booking. The task row lock
// serialises concurrent accepts on one task: the first to commit creates the
// booking and every later one sees it and fails with BOOKING_EXISTS.
func (s *bidService) AcceptBid(ctx context.Context, actor models.Actor, bidID uuid.UUID) (*models.Booking, error) {
	var b *models.Booking
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		bid, err := s.Bids.GetBid(ctx, tx, bidID)
		if err != nil {
			return err
		}
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, bid.TaskID)
		if err != nil {
			return err
		}
		if t.ClientID != actor.ID {
			return apperr.NotFound("bid")
		}
		active, err := s.Bookings.ActiveBookingForTask(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return apperr.New(apperr.CodeBookingExists, "task already has an active booking")
		}
		if bid, err = s.Bids.GetBidForUpdate(ctx, tx, bidID); err != nil {
			return err
		}
		if err := lifecycle.CanAcceptBid(bid); err != nil {
			return err
		}
		if !lifecycle.CanTask(t.State, lifecycle.TaskAccept) {
			return apperr.InvalidState("task", t.State, "accept bid on")
		}

		b = &models.Booking{
			TaskID:             t.ID,
			TaskerID:           bid.TaskerID,
			ClientID:           t.ClientID,
			RateAmount:         bid.Amount,
			RateCurrency:       bid.Currency,
			MinDurationMinutes: bid.MinDurationMinutes,
			BidID:              idPtr(bid.ID),
		}
		if err := s.createBooking(ctx, tx, b, actor, map[string]any{"source": "bid", "bid_id": bid.ID}); err != nil {
			return err
		}
		bid.Status = models.BidStatusAccepted
		if err := s.Bids.UpdateBid(ctx, tx, bid); err != nil {
			return err
		}
		declined, err := s.Bids.DeclineOtherPendingBids(ctx, tx, t.ID, bid.ID)
		if err != nil {
			return err
		}
		if err := s.applyTask(ctx, tx, t, lifecycle.TaskAccept, actor, "",
			map[string]any{"booking_id": b.ID, "bid_id": bid.ID}); err != nil {
			return err
		}
		if err := s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventBidAccepted,
			Recipients: []uuid.UUID{bid.TaskerID},
			TaskID:     t.ID,
			BookingID:  idPtr(b.ID),
			BidID:      idPtr(bid.ID),
		}); err != nil {
			return err
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventBidDeclined,
			Recipients: declined,
			TaskID:     t.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("bid accepted", "bid_id", bidID, "booking_id", b.ID, "task_id", b.TaskID)
	return b, nil
}

func (s *bidService) DeclineBid(ctx context.Context, actor models.Actor, bidID uuid.UUID) (*models.Bid, error) {
	var bid *models.Bid
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		var err error
		if bid, err = s.Bids.GetBidForUpdate(ctx, tx, bidID); err != nil {
			return err
		}
		t, err := s.Tasks.GetTask(ctx, tx, bid.TaskID)
		if err != nil {
			return err
		}
		if t.ClientID != actor.ID {
			return apperr.NotFound("bid")
		}
		if err := lifecycle.CanDeclineBid(bid.Status); err != nil {
			return err
		}
		bid.Status = models.BidStatusDeclined
		if err := s.Bids.UpdateBid(ctx, tx, bid); err != nil {
			return err
		}
		return s.notify(ctx, tx, execution.NotifyArgs{
			Event:      execution.EventBidDeclined,
			Recipients: []uuid.UUID{bid.TaskerID},
			TaskID:     t.ID,
			BidID:      idPtr(bid.ID),
		})
	})
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// ListForTask shows the client every bid on their task. A tasker only sees
// their own.
func (s *bidService) ListForTask(ctx context.Context, actor models.Actor, taskID uuid.UUID, p models.Page) (models.List[*models.Bid], error) {
	p = p.Normalize()
	var items []*models.Bid
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		t, err := s.Tasks.GetTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t.ClientID == actor.ID || actor.IsStaff() {
			items, err = s.Bids.ListBidsForTask(ctx, tx, taskID, p)
			return err
		}
		if actor.Role != models.RoleTasker {
			return apperr.NotFound("task")
		}
		own, err := s.Bids.BidForTasker(ctx, tx, taskID, actor.ID)
		if own != nil {
			items = []*models.Bid{own}
		}
		return err
	})
	if err != nil {
		return models.List[*models.Bid]{}, err
	}
	return models.NewList(items, p.Limit, func(b *models.Bid) uuid.UUID { return b.ID }), nil
}

func (s *bidService) ListMessages(ctx context.Context, actor models.Actor, bidID uuid.UUID, p models.Page) (models.List[*models.BidMessage], error) {
	p = p.Normalize()
	var items []*models.BidMessage
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		if !actor.IsStaff() {
			if _, _, err := s.bidParties(ctx, tx, actor, bidID); err != nil {
				return err
			}
		} else if _, err := s.Bids.GetBid(ctx, tx, bidID); err != nil {
			return err
		}
		var err error
		items, err = s.Bids.ListMessages(ctx, tx, bidID, p)
		return err
	})
	if err != nil {
		return models.List[*models.BidMessage]{}, err
	}
	return models.NewList(items, p.Limit, func(m *models.BidMessage) uuid.UUID { return m.ID }), nil
}
