package chatapi

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter gates requests per key (user id). Allow returns false when the
// key has exhausted its budget for the current window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryRateLimiter is a fixed-window in-process limiter for single-instance
// deployments and tests.
type MemoryRateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	counts  map[string]int
	resetAt time.Time
}

// NewMemoryRateLimiter constructs an in-process fixed-window limiter.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]int),
	}
}

// Allow reports whether the key still has budget in the current window.
func (l *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.resetAt) {
		l.counts = make(map[string]int)
		l.resetAt = now.Add(l.window)
	}

	l.counts[key]++
	return l.counts[key] <= l.limit, nil
}

// RedisRateLimiter is a fixed-window limiter shared across instances. The
// counter key expires with the window, so idle keys clean themselves up.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisRateLimiter constructs a Redis-backed fixed-window limiter.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ripple:ratelimit:",
	}
}

// Allow increments the window counter for key and checks it against the limit.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.limit <= 0 {
		return true, nil
	}

	count, err := l.client.Incr(ctx, l.prefix+key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		l.client.Expire(ctx, l.prefix+key, l.window)
	}
	return count <= int64(l.limit), nil
}

// withRateLimit wraps a handler with a per-user budget check. Limiter errors
// fail open: a broken Redis must not take the chat API down with it.
func (h *Handler) withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.limiter == nil {
			next(w, r)
			return
		}

		claims, ok := claimsFrom(r.Context())
		if !ok {
			next(w, r)
			return
		}

		allowed, err := h.limiter.Allow(r.Context(), claims.UserID)
		if err != nil {
			h.log.Error("chat.api.ratelimit.fail", "err", err)
			next(w, r)
			return
		}
		if !allowed {
			writeRateLimited(w, h.cfg.RateWindow)
			return
		}
		next(w, r)
	}
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
}
