package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/models"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// TokenValidator resolves a bearer token to the user id and role it was
// issued for.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
}

// Authenticate verifies the Bearer token and stores the caller as the
// request's Actor.
func Authenticate(tokens TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				httpx.WriteError(w, r, logger, apperr.New(apperr.CodeUnauthorized, "missing or malformed Authorization header"))
				return
			}
			id, role, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				httpx.WriteError(w, r, logger, apperr.Wrap(apperr.CodeUnauthorized, err, "invalid token"))
				return
			}
			ctx := WithActor(r.Context(), models.Actor{ID: id, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose role is not listed. It must run after
// Authenticate.
func RequireRole(logger *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromCtx(r.Context())
			if !ok {
				httpx.WriteError(w, r, logger, apperr.New(apperr.CodeUnauthorized, "authentication required"))
				return
			}
			if !allowed[actor.Role] {
				httpx.WriteError(w, r, logger, apperr.Forbidden("role %s may not call this endpoint", actor.Role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff admits admin and ops only.
func RequireStaff(logger *slog.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, models.RoleAdmin, models.RoleOps)
}

// ActorFromCtx returns the authenticated caller.
func ActorFromCtx(ctx context.Context) (models.Actor, bool) {
	a, ok := ctx.Value(ctxActorKey).(models.Actor)
	return a, ok
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a models.Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, a)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
