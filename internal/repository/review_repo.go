package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/inaiurai/marketplace/internal/models"
)

type ReviewRepo struct{}

func NewReviewRepo() *ReviewRepo {
	return &ReviewRepo{}
}

// CreateReview inserts a review; one per booking, REVIEW_EXISTS otherwise.
func (r *ReviewRepo) CreateReview(ctx context.Context, tx pgx.Tx, rv *models.Review) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO reviews (id, booking_id, task_id, reviewer_id, tasker_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rv.ID, rv.BookingID, rv.TaskID, rv.ReviewerID, rv.TaskerID, rv.Rating, rv.Comment).Scan(&rv.CreatedAt)
	return mapErr(err, "review")
}

func (r *ReviewRepo) ReviewForBooking(ctx context.Context, tx pgx.Tx, bookingID uuid.UUID) (*models.Review, error) {
	var rv models.Review
	err := tx.QueryRow(ctx, `
		SELECT id, booking_id, task_id, reviewer_id, tasker_id, rating, comment, created_at
		FROM reviews WHERE booking_id = $1
	`, bookingID).Scan(&rv.ID, &rv.BookingID, &rv.TaskID, &rv.ReviewerID, &rv.TaskerID, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	return noRowsAsNil(&rv, err)
}

// UpdateTaskerRating recomputes the tasker's average rating and job count.
func (r *ReviewRepo) UpdateTaskerRating(ctx context.Context, tx pgx.Tx, taskerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE tasker_profiles SET
			rating = (SELECT avg(rating)::float8 FROM reviews WHERE tasker_id = $1),
			completed_jobs = (SELECT count(*) FROM bookings WHERE tasker_id = $1 AND status = 'completed'),
			updated_at = now()
		WHERE user_id = $1
	`, taskerID)
	return err
}
