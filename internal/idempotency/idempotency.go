// Package idempotency replays the first response of a mutating request when
// the client retries it with the same Idempotency-Key.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inaiurai/marketplace/internal/apperr"
	"github.com/inaiurai/marketplace/internal/httpx"
	"github.com/inaiurai/marketplace/internal/middleware"
)

const (
	HeaderKey      = "Idempotency-Key"
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
	lockTTL      = 30 * time.Second
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store caches responses in Redis. A nil client disables deduplication.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *slog.Logger
}

func NewStore(client redis.UniversalClient, ttl time.Duration, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, ttl: ttl, log: log}
}

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// Middleware must run after authentication so keys are scoped to the caller.
// Responses with status below 500 are cached; server errors may be retried.
func (s *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderKey))
		if s.client == nil || key == "" || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			httpx.WriteError(w, r, s.log, apperr.Validation("%s must be at most %d characters", HeaderKey, maxKeyLength))
			return
		}
		actor, _ := middleware.ActorFromCtx(r.Context())
		cacheKey := "idem:" + actor.ID.String() + ":" + r.Method + ":" + r.URL.Path + ":" + key
		lockKey := cacheKey + ":lock"
		ctx := r.Context()

		cached, err := s.lookup(ctx, cacheKey)
		if err != nil {
			s.log.Warn("idempotency cache unavailable, passing through", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if cached != nil {
			replay(w, cached)
			return
		}

		acquired, err := s.client.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil {
			s.log.Warn("idempotency lock unavailable, passing through", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !acquired {
			httpx.WriteError(w, r, s.log, apperr.New(apperr.CodeConflict, "a request with this idempotency key is in progress"))
			return
		}
		// The lock must be released even if the request context is canceled.
		defer s.client.Del(context.WithoutCancel(ctx), lockKey)

		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 || rec.status >= http.StatusInternalServerError {
			return
		}
		payload, err := json.Marshal(cachedResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := s.client.Set(context.WithoutCancel(ctx), cacheKey, payload, s.ttl).Err(); err != nil {
			s.log.Warn("idempotency cache write failed", "error", err)
		}
	})
}

func (s *Store) lookup(ctx context.Context, key string) (*cachedResponse, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var c cachedResponse
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func replay(w http.ResponseWriter, c *cachedResponse) {
	if c.ContentType != "" {
		w.Header().Set("Content-Type", c.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(c.Status)
	_, _ = w.Write(c.Body)
}
