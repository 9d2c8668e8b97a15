package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

const profileColumns = `p.user_id, u.display_name, p.categories, p.city, p.lat, p.lng, p.hourly_rate, p.currency,
	p.rating, p.completed_jobs, p.available, p.created_at, p.updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanProfile(row pgx.Row) (*models.TaskerProfile, error) {
	var p models.TaskerProfile
	err := row.Scan(&p.UserID, &p.DisplayName, &p.Categories, &p.City, &p.Lat, &p.Lng, &p.HourlyRate, &p.Currency,
		&p.Rating, &p.CompletedJobs, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Upsert creates or replaces the editable part of a tasker's profile.
// Rating and job counts are maintained by reviews and are left untouched.
func (r *Repository) Upsert(ctx context.Context, p *models.TaskerProfile) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasker_profiles (user_id, categories, city, lat, lng, hourly_rate, currency, available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			categories = EXCLUDED.categories, city = EXCLUDED.city, lat = EXCLUDED.lat, lng = EXCLUDED.lng,
			hourly_rate = EXCLUDED.hourly_rate, currency = EXCLUDED.currency, available = EXCLUDED.available,
			updated_at = now()
		RETURNING rating, completed_jobs, created_at, updated_at
	`, p.UserID, p.Categories, p.City, p.Lat, p.Lng, p.HourlyRate, p.Currency, p.Available,
	).Scan(&p.Rating, &p.CompletedJobs, &p.CreatedAt, &p.UpdatedAt)
}

func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (*models.TaskerProfile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `
		SELECT `+profileColumns+` FROM tasker_profiles p JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("tasker profile")
	}
	return p, err
}

// FindAvailable lists available taskers offering the category. An empty city
// matches every city.
func (r *Repository) FindAvailable(ctx context.Context, category, city string) ([]*models.TaskerProfile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+profileColumns+` FROM tasker_profiles p JOIN users u ON u.id = p.user_id
		WHERE p.available AND u.role = 'tasker' AND $1 = ANY(p.categories) AND ($2 = '' OR p.city = $2)
		ORDER BY p.rating DESC NULLS LAST, p.user_id
	`, category, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TaskerProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
