package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskerProfile is what matching knows about a tasker.
type TaskerProfile struct {
	UserID        uuid.UUID `json:"user_id"`
	DisplayName   string    `json:"display_name"`
	Categories    []string  `json:"categories"`
	City          string    `json:"city"`
	Lat           *float64  `json:"lat,omitempty"`
	Lng           *float64  `json:"lng,omitempty"`
	HourlyRate    *int64    `json:"hourly_rate,omitempty"`
	Currency      string    `json:"currency"`
	Rating        *float64  `json:"rating,omitempty"`
	CompletedJobs int       `json:"completed_jobs"`
	Available     bool      `json:"available"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
