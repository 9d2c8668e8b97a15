package models

import (
	"time"

	"github.com/google/uuid"
)

// Bid statuses.
const (
	BidStatusRequested = "requested"
	BidStatusPending   = "pending"
	BidStatusAccepted  = "accepted"
	BidStatusDeclined  = "declined"
)

// Negotiation message kinds.
const (
	MessageKindText  = "text"
	MessageKindVoice = "voice"
	MessageKindImage = "image"
	MessageKindVideo = "video"
)

type Bid struct {
	ID                 uuid.UUID  `json:"id"`
	TaskID             uuid.UUID  `json:"task_id"`
	TaskerID           uuid.UUID  `json:"tasker_id"`
	Amount             *int64     `json:"amount"`
	Currency           string     `json:"currency"`
	MinDurationMinutes int        `json:"min_duration_minutes"`
	Message            string     `json:"message,omitempty"`
	ProposedStart      *time.Time `json:"proposed_start,omitempty"`
	Status             string     `json:"status"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type BidMessage struct {
	ID        uuid.UUID `json:"id"`
	BidID     uuid.UUID `json:"bid_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text,omitempty"`
	MediaURL  string    `json:"media_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
