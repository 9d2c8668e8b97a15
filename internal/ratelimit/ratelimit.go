// Package ratelimit implements the sliding-window limiter that throttles
// negotiation messages per (user, bid).
package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter reports whether one more event under key fits in the window.
// An allowed call counts against the limit; a rejected one does not.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Local is an in-process sliding window. It is only correct for a single
// server instance.
type Local struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

func NewLocal(limit int, window time.Duration) *Local {
	return &Local{limit: limit, window: window, now: time.Now, events: make(map[string][]time.Time)}
}

// WithClock replaces the time source. Tests use it to move past the window.
func (l *Local) WithClock(now func() time.Time) *Local {
	l.now = now
	return l
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.events[key][:0]
	for _, ts := range l.events[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.limit {
		l.events[key] = kept
		return false, nil
	}
	l.events[key] = append(kept, now)
	return true, nil
}

// Redis keeps one sorted set per key, scored by unix milliseconds, so every
// instance sees the same window. Redis errors fall back to the local limiter.
type Redis struct {
	client   redis.UniversalClient
	limit    int
	window   time.Duration
	prefix   string
	fallback *Local
	log      *slog.Logger
	now      func() time.Time
}

func NewRedis(client redis.UniversalClient, limit int, window time.Duration, log *slog.Logger) *Redis {
	if log == nil {
		log = slog.Default()
	}
	return &Redis{
		client:   client,
		limit:    limit,
		window:   window,
		prefix:   "ratelimit:",
		fallback: NewLocal(limit, window),
		log:      log,
		now:      time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := r.allow(ctx, r.prefix+key)
	if err != nil {
		r.log.Warn("redis rate limiter unavailable, using in-process window", "key", key, "error", err)
		return r.fallback.Allow(ctx, key)
	}
	return ok, nil
}

func (r *Redis) allow(ctx context.Context, key string) (bool, error) {
	now := r.now()
	nowMs := now.UnixMilli()
	cutoff := now.Add(-r.window).UnixMilli()
	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMs), Member: member})
		card = pipe.ZCard(ctx, key)
		pipe.PExpire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	if card.Val() > int64(r.limit) {
		// Rejected attempts must not extend the caller's lockout.
		if err := r.client.ZRem(ctx, key, member).Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
