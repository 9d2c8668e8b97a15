// Package registry keeps the tasker profiles that candidate matching draws on.
package registry

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/models"
)

// Store is the persistence the service needs.
type Store interface {
	Upsert(ctx context.Context, p *models.TaskerProfile) error
	Get(ctx context.Context, userID uuid.UUID) (*models.TaskerProfile, error)
	FindAvailable(ctx context.Context, category, city string) ([]*models.TaskerProfile, error)
}

type ProfileParams struct {
	Categories []string `json:"categories" validate:"required,min=1,dive,required"`
	City       string   `json:"city" validate:"required"`
	Lat        *float64 `json:"lat" validate:"omitempty,latitude"`
	Lng        *float64 `json:"lng" validate:"omitempty,longitude"`
	HourlyRate *int64   `json:"hourly_rate" validate:"omitempty,gt=0"`
	Currency   string   `json:"currency" validate:"omitempty,len=3"`
	Available  *bool    `json:"available"`
}

type Service interface {
	UpsertProfile(ctx context.Context, actor models.Actor, p ProfileParams) (*models.TaskerProfile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.TaskerProfile, error)
	FindAvailableTaskers(ctx context.Context, category, city string) ([]*models.TaskerProfile, error)
}

type service struct {
	store Store
}

func NewService(store Store) Service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

// normalizeCategories lowercases each category so matching is case-insensitive.
func normalizeCategories(categories []string) []string {
	out := make([]string, 0, len(categories))
	seen := make(map[string]bool, len(categories))
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (s *service) UpsertProfile(ctx context.Context, actor models.Actor, p ProfileParams) (*models.TaskerProfile, error) {
	if actor.Role != models.RoleTasker {
		return nil, apperr.Forbidden("only taskers have profiles")
	}
	currency := strings.ToUpper(p.Currency)
	if currency == "" {
		currency = models.DefaultCurrency
	}
	available := true
	if p.Available != nil {
		available = *p.Available
	}
	profile := &models.TaskerProfile{
		UserID:     actor.ID,
		Categories: normalizeCategories(p.Categories),
		City:       strings.TrimSpace(p.City),
		Lat:        p.Lat,
		Lng:        p.Lng,
		HourlyRate: p.HourlyRate,
		Currency:   currency,
		Available:  available,
	}
	if len(profile.Categories) == 0 {
		return nil, apperr.Validation("at least one category is required")
	}
	if err := s.store.Upsert(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *service) GetProfile(ctx context.Context, userID uuid.UUID) (*models.TaskerProfile, error) {
	return s.store.Get(ctx, userID)
}

func (s *service) FindAvailableTaskers(ctx context.Context, category, city string) ([]*models.TaskerProfile, error) {
	return s.store.FindAvailable(ctx, strings.ToLower(strings.TrimSpace(category)), city)
}
