package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds handed to the payment collaborator.
const (
	LedgerEntryPayout = "payout"
	LedgerEntryRefund = "refund"
)

type LedgerEntry struct {
	ID        uuid.UUID  `json:"id"`
	BookingID uuid.UUID  `json:"booking_id"`
	TaskID    uuid.UUID  `json:"task_id"`
	Kind      string     `json:"kind"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
