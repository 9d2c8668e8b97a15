package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles. Admin and ops are staff and may act across normal actor boundaries.
const (
	RoleClient = "client"
	RoleTasker = "tasker"
	RoleAdmin  = "admin"
	RoleOps    = "ops"

	// RoleSystem tags events written by background jobs.
	RoleSystem = "system"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// SystemActor is used for transitions driven by workers rather than users.
var SystemActor = Actor{Role: RoleSystem}

// IsStaff reports whether the actor may override normal ownership rules.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleOps
}

// ActorID returns nil for the system actor so events store NULL.
func (a Actor) ActorID() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}
