package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Aggregates tracked in the lifecycle event log.
const (
	AggregateTask    = "task"
	AggregateBooking = "booking"
)

// Event is one row of the append-only lifecycle log. Rows are inserted and
// never updated or deleted; admin-originated rows differ only by ActorRole.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	TaskID        uuid.UUID       `json:"task_id"`
	FromState     *string         `json:"from_state"`
	ToState       string          `json:"to_state"`
	ActorID       *uuid.UUID      `json:"actor_id,omitempty"`
	ActorRole     string          `json:"actor_role"`
	Reason        string          `json:"reason,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
