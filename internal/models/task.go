package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task states.
const (
	TaskStateDraft            = "draft"
	TaskStatePosted           = "posted"
	TaskStateMatching         = "matching"
	TaskStateAccepted         = "accepted"
	TaskStateInProgress       = "in_progress"
	TaskStateCompleted        = "completed"
	TaskStateSettled          = "settled"
	TaskStateReviewed         = "reviewed"
	TaskStateCanceledByClient = "canceled_by_client"
	TaskStateCanceledByTasker = "canceled_by_tasker"
	TaskStateDisputed         = "disputed"
)

const (
	BidModeInviteOnly  = "invite_only"
	BidModeOpenForBids = "open_for_bids"

	PricingFixed  = "fixed"
	PricingHourly = "hourly"

	// DefaultCurrency applies when a price is given without a currency.
	DefaultCurrency = "EGP"
)

type Location struct {
	Address  string   `json:"address,omitempty"`
	City     string   `json:"city" validate:"required"`
	District string   `json:"district,omitempty"`
	Lat      *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng      *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

type Task struct {
	ID                 uuid.UUID       `json:"id"`
	ClientID           uuid.UUID       `json:"client_id"`
	Category           string          `json:"category"`
	Subcategory        string          `json:"subcategory,omitempty"`
	Description        string          `json:"description"`
	Location           Location        `json:"location"`
	ScheduledStart     *time.Time      `json:"scheduled_start,omitempty"`
	FlexibilityMinutes int             `json:"flexibility_minutes"`
	PricingModel       string          `json:"pricing_model"`
	PriceAmount        *int64          `json:"price_amount,omitempty"`
	PriceCurrency      string          `json:"price_currency"`
	StructuredInputs   json.RawMessage `json:"structured_inputs,omitempty"`
	BidMode            string          `json:"bid_mode"`
	State              string          `json:"state"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// TaskCandidate is a tasker the task has been offered to.
type TaskCandidate struct {
	TaskID    uuid.UUID `json:"task_id"`
	TaskerID  uuid.UUID `json:"tasker_id"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// TaskFilter selects tasks for list endpoints. Zero-valued fields are ignored.
type TaskFilter struct {
	ClientID    *uuid.UUID
	CandidateID *uuid.UUID
	States      []string
	Category    string
	City        string
	BidMode     string
	Page        Page
}
