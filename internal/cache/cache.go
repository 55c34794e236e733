// Package cache defines the interface for the shared key-value cache store.
// The store backs two independent concerns: the per-owner task list cache
// (plain get/set/delete with TTL) and the sliding-window rate limiter
// (sorted-set primitives scored by request timestamp). Implementations are
// expected to be safe for concurrent use across request handlers and across
// process instances.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// ScoredMember is one entry of a sorted set together with its score.
// The rate limiter scores members with the request's Unix-millisecond
// timestamp.
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the contract for the shared cache backend.
type Store interface {
	// Get retrieves the value stored under key.
	// Returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL. A zero TTL stores the
	// key without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeleteByPrefix removes every key starting with the given prefix.
	DeleteByPrefix(ctx context.Context, prefix string) error

	// AddScored adds a member with the given score to the sorted set at key,
	// creating the set if needed.
	AddScored(ctx context.Context, key string, score float64, member string) error

	// RemoveRangeByScore removes all members of the sorted set at key whose
	// score lies within [min, max].
	RemoveRangeByScore(ctx context.Context, key string, min, max float64) error

	// RemoveMember removes a single member from the sorted set at key.
	// Removing an absent member is not an error.
	RemoveMember(ctx context.Context, key, member string) error

	// Cardinality returns the number of members in the sorted set at key.
	Cardinality(ctx context.Context, key string) (int64, error)

	// RangeWithScores returns the members of the sorted set at key between
	// the start and stop ranks (inclusive, zero-based, ascending by score),
	// together with their scores.
	RangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error)

	// Expire sets or refreshes the TTL of key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ready reports whether the backing store is reachable and able to
	// serve requests. The rate limiter consults this flag to fail open when
	// the store is down.
	Ready(ctx context.Context) bool
}
