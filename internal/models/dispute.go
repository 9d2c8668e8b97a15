package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	DisputeStatusOpen     = "open"
	DisputeStatusResolved = "resolved"
)

type Evidence struct {
	UserID    uuid.UUID `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Dispute struct {
	ID               uuid.UUID       `json:"id"`
	BookingID        uuid.UUID       `json:"booking_id"`
	OpenedBy         uuid.UUID       `json:"opened_by"`
	Reason           string          `json:"reason"`
	AmountInQuestion *int64          `json:"amount_in_question,omitempty"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Evidence         []Evidence      `json:"evidence"`
	Resolution       json.RawMessage `json:"resolution,omitempty"`
	RefundAmount     *int64          `json:"refund_amount,omitempty"`
	ResolvedBy       *uuid.UUID      `json:"resolved_by,omitempty"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

type Review struct {
	ID         uuid.UUID `json:"id"`
	BookingID  uuid.UUID `json:"booking_id"`
	TaskID     uuid.UUID `json:"task_id"`
	ReviewerID uuid.UUID `json:"reviewer_id"`
	TaskerID   uuid.UUID `json:"tasker_id"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
