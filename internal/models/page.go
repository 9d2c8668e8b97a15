package models

import "github.com/google/uuid"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Page is a keyset cursor. Ids are UUIDv7, so id order is creation order and
// the cursor is simply the id of the last item returned.
type Page struct {
	Cursor *uuid.UUID
	Limit  int
}

// Normalize clamps the limit into [1, MaxPageLimit].
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// List is the paginated response envelope.
type List[T any] struct {
	Items      []T        `json:"items"`
	NextCursor *uuid.UUID `json:"next_cursor"`
}

// NewList trims a result fetched with limit+1 rows and derives the next cursor.
func NewList[T any](items []T, limit int, id func(T) uuid.UUID) List[T] {
	if items == nil {
		items = []T{}
	}
	if len(items) <= limit {
		return List[T]{Items: items}
	}
	items = items[:limit]
	next := id(items[len(items)-1])
	return List[T]{Items: items, NextCursor: &next}
}
