package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/cache"
)

// Policy describes one sliding-window configuration. The same algorithm
// serves every policy; only the window length and request ceiling differ.
type Policy struct {
	// Window is the length of the sliding window.
	Window time.Duration

	// Max is the maximum number of requests admitted within the window.
	Max int
}

// Decision is the outcome of evaluating a single request against a policy.
type Decision struct {
	// Allowed reports whether the request was admitted.
	Allowed bool

	// Limit is the policy ceiling, echoed for response headers.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is the instant the window fully resets from now.
	ResetAt time.Time

	// RetryAfter is how long the caller should wait before retrying.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// Member identifies the window entry added for this request, if any.
	// Callers hand it back to Forgive to exempt the request post-hoc
	// (e.g. successful logins not counting against the auth limit).
	Member string
}

// Limiter evaluates requests against sliding-window policies using the
// shared cache store. It holds no per-key state of its own, so multiple
// process instances sharing one store enforce one combined limit.
type Limiter struct {
	store    cache.Store
	logger   *slog.Logger
	timeFunc func() time.Time // Injectable for testing
}

// NewLimiter creates a Limiter backed by the given cache store.
// If logger is nil, a default logger will be used.
func NewLimiter(store cache.Store, logger *slog.Logger) *Limiter {
	if store == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("cache store cannot be nil for Limiter")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{
		store:    store,
		logger:   logger.With(slog.String("component", "rate_limiter")),
		timeFunc: time.Now,
	}
}

// NewLimiterWithClock creates a Limiter with an injectable clock for tests.
func NewLimiterWithClock(store cache.Store, logger *slog.Logger, timeFunc func() time.Time) *Limiter {
	l := NewLimiter(store, logger)
	if timeFunc != nil {
		l.timeFunc = timeFunc
	}
	return l
}

// Admit evaluates one request for the given identity key against the policy.
//
// Algorithm (sliding window over a timestamped set):
//  1. evict entries older than now-window
//  2. count the survivors
//  3. at or over the ceiling: reject, computing RetryAfter from the oldest
//     surviving entry; the rejected request adds no entry
//  4. under the ceiling: append (now, nonce) and refresh the key TTL so
//     abandoned keys self-clean
//
// Any store error, or a store that reports not-ready, fails open: the
// request is admitted and no error is returned.
func (l *Limiter) Admit(ctx context.Context, key string, policy Policy) Decision {
	now := l.timeFunc()

	if !l.store.Ready(ctx) {
		l.logger.Warn("rate limit store not ready, failing open",
			slog.String("key", key))
		return l.failOpen(now, policy)
	}

	nowMs := now.UnixMilli()
	windowMs := policy.Window.Milliseconds()

	// 1. Window eviction: drop everything that slid out of the window.
	if err := l.store.RemoveRangeByScore(ctx, key, 0, float64(nowMs-windowMs)); err != nil {
		l.logger.Warn("rate limit eviction failed, failing open",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return l.failOpen(now, policy)
	}

	// 2. Count the requests still inside the window.
	count, err := l.store.Cardinality(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit count failed, failing open",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return l.failOpen(now, policy)
	}

	// 3. Ceiling reached: reject without adding an entry.
	if count >= int64(policy.Max) {
		retryAfter := l.retryAfter(ctx, key, nowMs, windowMs, policy)
		l.logger.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int64("count", count),
			slog.Int("max", policy.Max))
		return Decision{
			Allowed:    false,
			Limit:      policy.Max,
			Remaining:  0,
			ResetAt:    now.Add(policy.Window),
			RetryAfter: retryAfter,
		}
	}

	// 4. Admit: record this request. The nonce keeps same-millisecond
	// entries distinct, since set members are keyed by identity.
	member := fmt.Sprintf("%d-%s", nowMs, uuid.NewString())
	if err := l.store.AddScored(ctx, key, float64(nowMs), member); err != nil {
		l.logger.Warn("rate limit insert failed, failing open",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return l.failOpen(now, policy)
	}

	keyTTL := time.Duration(ceilSeconds(windowMs)) * time.Second
	if err := l.store.Expire(ctx, key, keyTTL); err != nil {
		// The entry is already recorded; a failed TTL refresh only delays
		// self-cleaning of the key.
		l.logger.Warn("rate limit expire failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}

	remaining := policy.Max - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   true,
		Limit:     policy.Max,
		Remaining: remaining,
		ResetAt:   now.Add(policy.Window),
		Member:    member,
	}
}

// Forgive removes a previously recorded window entry for the key. It is the
// post-outcome hook: a handler that completed successfully reports back and
// the request stops counting against the limit. Errors are logged and
// swallowed; forgiveness is best-effort.
func (l *Limiter) Forgive(ctx context.Context, key, member string) {
	if member == "" {
		return
	}
	if err := l.store.RemoveMember(ctx, key, member); err != nil {
		l.logger.Warn("failed to forgive rate limit entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// retryAfter derives the wait from the oldest surviving entry: the window
// reopens one slot when that entry slides out. Falls back to the full
// window when the set reads empty (the entry may have been evicted by a
// concurrent request between counting and reading).
func (l *Limiter) retryAfter(ctx context.Context, key string, nowMs, windowMs int64, policy Policy) time.Duration {
	oldest, err := l.store.RangeWithScores(ctx, key, 0, 0)
	if err != nil || len(oldest) == 0 {
		return time.Duration(ceilSeconds(windowMs)) * time.Second
	}

	oldestMs := int64(oldest[0].Score)
	waitMs := oldestMs + windowMs - nowMs
	if waitMs < 0 {
		waitMs = 0
	}
	seconds := ceilSeconds(waitMs)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// failOpen builds the admit-unconditionally decision used whenever the
// backing store cannot be consulted.
func (l *Limiter) failOpen(now time.Time, policy Policy) Decision {
	return Decision{
		Allowed:   true,
		Limit:     policy.Max,
		Remaining: policy.Max,
		ResetAt:   now.Add(policy.Window),
	}
}

// ceilSeconds converts milliseconds to whole seconds, rounding up.
func ceilSeconds(ms int64) int64 {
	return int64(math.Ceil(float64(ms) / 1000.0))
}
