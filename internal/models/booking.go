package models

import (
	"time"

	"github.com/google/uuid"
)

// Booking statuses.
const (
	BookingStatusOffered    = "offered"
	BookingStatusAccepted   = "accepted"
	BookingStatusConfirmed  = "confirmed"
	BookingStatusInProgress = "in_progress"
	BookingStatusCompleted  = "completed"
	BookingStatusCanceled   = "canceled"
	BookingStatusDisputed   = "disputed"
)

type Booking struct {
	ID                 uuid.UUID  `json:"id"`
	TaskID             uuid.UUID  `json:"task_id"`
	TaskerID           uuid.UUID  `json:"tasker_id"`
	ClientID           uuid.UUID  `json:"client_id"`
	Status             string     `json:"status"`
	RateAmount         *int64     `json:"rate_amount,omitempty"`
	RateCurrency       string     `json:"rate_currency"`
	MinDurationMinutes int        `json:"min_duration_minutes"`
	BidID              *uuid.UUID `json:"bid_id,omitempty"`
	CancelReason       string     `json:"cancel_reason,omitempty"`
	ArrivedAt          *time.Time `json:"arrived_at,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsParty reports whether the actor is the booking's client or tasker.
func (b *Booking) IsParty(a Actor) bool {
	return a.ID == b.ClientID || a.ID == b.TaskerID
}

// BookingFilter selects bookings for list endpoints. PartyID matches either side.
type BookingFilter struct {
	TaskID   *uuid.UUID
	PartyID  *uuid.UUID
	Statuses []string
	Page     Page
}
