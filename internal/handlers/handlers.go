// Package handlers adapts the lifecycle services to HTTP. Handlers decode and
// validate requests, take the caller from the request context and map
// service errors onto the shared error envelope.
package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/middleware"
	"github.com/inaiurai/marketplace/internal/models"
)

func defaultLogger(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

// callerAndID reads the authenticated actor and the {id} path segment,
// writing the error response itself when either is missing.
func callerAndID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (models.Actor, uuid.UUID, bool) {
	actor, ok := caller(w, r, log)
	if !ok {
		return actor, uuid.Nil, false
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, log, err)
		return actor, uuid.Nil, false
	}
	return actor, id, true
}

func caller(w http.ResponseWriter, r *http.Request, log *slog.Logger) (models.Actor, bool) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		httpx.WriteError(w, r, log, apperr.ErrUnauthorized)
	}
	return actor, ok
}

// reasonRequest is the optional body of cancel and reject calls.
type reasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

// decodeOptional decodes a body that may be absent.
func decodeOptional(r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return httpx.Validate(dst)
	}
	return httpx.Decode(r, dst)
}

func queryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, apperr.Validation("invalid %s", key)
	}
	return &id, nil
}
