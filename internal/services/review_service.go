package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/lifecycle"
	"github.com/inaiurai/marketplace/internal/models"
)

type ReviewParams struct {
	BookingID uuid.UUID `json:"booking_id" validate:"required"`
	Rating    int       `json:"rating" validate:"required,min=1,max=5"`
	Comment   string    `json:"comment" validate:"max=2000"`
}

type ReviewService interface {
	Create(ctx context.Context, actor models.Actor, p ReviewParams) (*models.Review, error)
}

type reviewService struct {
	*Deps
}

func NewReviewService(deps *Deps) ReviewService {
	deps.init()
	return &reviewService{Deps: deps}
}

var _ ReviewService = (*reviewService)(nil)

// Create records the client's review of a completed booking, refreshes the
// tasker's rating and closes the task as reviewed.
func (s *reviewService) Create(ctx context.Context, actor models.Actor, p ReviewParams) (*models.Review, error) {
	if err := httpx.Validate(p); err != nil {
		return nil, err
	}
	var rv *models.Review
	err := inTx(ctx, s.DB, func(tx pgx.Tx) error {
		b, err := s.Bookings.GetBookingForUpdate(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		if b.ClientID != actor.ID {
			return apperr.Forbidden("only the booking's client may review it")
		}
		if b.Status != models.BookingStatusCompleted {
			return apperr.InvalidState("booking", b.Status, "review")
		}
		existing, err := s.Reviews.ReviewForBooking(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.CodeReviewExists, "booking already reviewed")
		}
		t, err := s.Tasks.GetTaskForUpdate(ctx, tx, b.TaskID)
		if err != nil {
			return err
		}
		rv = &models.Review{
			ID:         newID(),
			BookingID:  b.ID,
			TaskID:     b.TaskID,
			ReviewerID: actor.ID,
			TaskerID:   b.TaskerID,
			Rating:     p.Rating,
			Comment:    strings.TrimSpace(p.Comment),
		}
		if err := s.Reviews.CreateReview(ctx, tx, rv); err != nil {
			return err
		}
		if err := s.Reviews.UpdateTaskerRating(ctx, tx, b.TaskerID); err != nil {
			return err
		}
		return s.applyTask(ctx, tx, t, lifecycle.TaskReview, actor, "", map[string]any{"review_id": rv.ID, "rating": rv.Rating})
	})
	if err != nil {
		return nil, err
	}
	return rv, nil
}
