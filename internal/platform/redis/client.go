// Package redis provides the Redis-backed implementation of the cache.Store
// interface used by the task list cache and the rate limiter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tasklight/tasklight-api/internal/cache"
	"github.com/tasklight/tasklight-api/internal/config"
)

// Store implements cache.Store on top of a Redis client.
type Store struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// Ensure Store implements cache.Store interface
var _ cache.Store = (*Store)(nil)

// NewStore creates a Redis-backed cache store from the given configuration.
// The connection is established lazily; use Ready to probe availability.
// If logger is nil, a default logger will be used.
func NewStore(cfg config.RedisConfig, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Store{
		rdb:    rdb,
		logger: logger.With(slog.String("component", "redis_store")),
	}
}

// NewStoreWithClient wraps an existing Redis client. Used by tests and by
// callers that manage the client lifecycle themselves.
func NewStoreWithClient(rdb *redis.Client, logger *slog.Logger) *Store {
	if rdb == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("redis client cannot be nil for Store")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rdb:    rdb,
		logger: logger.With(slog.String("component", "redis_store")),
	}
}

// Close releases the underlying client's connection resources.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Get implements cache.Store.Get.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

// Set implements cache.Store.Set.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Delete implements cache.Store.Delete.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeleteByPrefix implements cache.Store.DeleteByPrefix.
// It iterates the keyspace with SCAN rather than KEYS so large keyspaces
// do not block the server.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del by prefix %q: %w", prefix, err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %q: %w", prefix, err)
	}
	if len(keys) > 0 {
		if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redis del by prefix %q: %w", prefix, err)
		}
	}
	return nil
}

// AddScored implements cache.Store.AddScored.
func (s *Store) AddScored(ctx context.Context, key string, score float64, member string) error {
	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("redis zadd %q: %w", key, err)
	}
	return nil
}

// RemoveRangeByScore implements cache.Store.RemoveRangeByScore.
func (s *Store) RemoveRangeByScore(ctx context.Context, key string, min, max float64) error {
	minArg := fmt.Sprintf("%f", min)
	maxArg := fmt.Sprintf("%f", max)
	if err := s.rdb.ZRemRangeByScore(ctx, key, minArg, maxArg).Err(); err != nil {
		return fmt.Errorf("redis zremrangebyscore %q: %w", key, err)
	}
	return nil
}

// RemoveMember implements cache.Store.RemoveMember.
func (s *Store) RemoveMember(ctx context.Context, key, member string) error {
	if err := s.rdb.ZRem(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("redis zrem %q: %w", key, err)
	}
	return nil
}

// Cardinality implements cache.Store.Cardinality.
func (s *Store) Cardinality(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard %q: %w", key, err)
	}
	return n, nil
}

// RangeWithScores implements cache.Store.RangeWithScores.
func (s *Store) RangeWithScores(ctx context.Context, key string, start, stop int64) ([]cache.ScoredMember, error) {
	zs, err := s.rdb.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange %q: %w", key, err)
	}

	members := make([]cache.ScoredMember, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, cache.ScoredMember{Member: member, Score: z.Score})
	}
	return members, nil
}

// Expire implements cache.Store.Expire.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %q: %w", key, err)
	}
	return nil
}

// Ready implements cache.Store.Ready. A failed PING marks the store as
// unavailable; callers degrade rather than surface the error.
func (s *Store) Ready(ctx context.Context) bool {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.logger.Warn("redis not ready", slog.String("error", err.Error()))
		return false
	}
	return true
}
