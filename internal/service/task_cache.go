package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/cache"
	"github.com/tasklight/tasklight-api/internal/domain"
	"github.com/tasklight/tasklight-api/internal/platform/logger"
)

// taskListTTL is the backstop expiry for cached task lists. Coherence is
// maintained by explicit invalidation on every mutation; the TTL only
// bounds staleness if an invalidation is lost.
const taskListTTL = 3600 * time.Second

// TaskCache caches each owner's full task list under a single key.
// List-level (not item-level) caching keeps invalidation trivially correct:
// one key delete per mutation, at the cost of discarding the whole cached
// list on any single-task change.
//
// Caching is best-effort throughout: every cache-store error is logged and
// swallowed, degrading to repository-only operation.
type TaskCache struct {
	store  cache.Store
	logger *slog.Logger
}

// NewTaskCache creates a TaskCache backed by the given cache store.
// If logger is nil, a default logger will be used.
func NewTaskCache(store cache.Store, logger *slog.Logger) *TaskCache {
	if store == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("cache store cannot be nil for TaskCache")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskCache{
		store:  store,
		logger: logger.With(slog.String("component", "task_cache")),
	}
}

// key builds the cache key for an owner's task list.
func (c *TaskCache) key(ownerID uuid.UUID) string {
	return fmt.Sprintf("tasks:%s", ownerID)
}

// Get returns the cached task list for the owner and whether it was present.
// A miss, an unreachable store, and a corrupt payload all report absent.
func (c *TaskCache) Get(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, bool) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	data, err := c.store.Get(ctx, c.key(ownerID))
	if err != nil {
		if err != cache.ErrCacheMiss {
			log.Warn("task cache read failed",
				slog.String("user_id", ownerID.String()),
				slog.String("error", err.Error()))
		}
		return nil, false
	}

	var tasks []*domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		log.Warn("task cache payload corrupt, treating as miss",
			slog.String("user_id", ownerID.String()),
			slog.String("error", err.Error()))
		return nil, false
	}

	log.Debug("task cache hit",
		slog.String("user_id", ownerID.String()),
		slog.Int("count", len(tasks)))
	return tasks, true
}

// Put stores the owner's task list. A failed write only skips the cache
// population; the caller already holds correct data.
func (c *TaskCache) Put(ctx context.Context, ownerID uuid.UUID, tasks []*domain.Task) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	data, err := json.Marshal(tasks)
	if err != nil {
		log.Warn("failed to marshal task list for cache",
			slog.String("user_id", ownerID.String()),
			slog.String("error", err.Error()))
		return
	}

	if err := c.store.Set(ctx, c.key(ownerID), data, taskListTTL); err != nil {
		log.Warn("task cache write failed",
			slog.String("user_id", ownerID.String()),
			slog.String("error", err.Error()))
	}
}

// Invalidate deletes the owner's cached task list. It must be called after
// every successful create, update, or delete affecting that owner, even
// though the mutation already returned fresh data: the cache is optimized
// for list reads, so the whole per-owner entry is dropped rather than
// patched.
func (c *TaskCache) Invalidate(ctx context.Context, ownerID uuid.UUID) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	if err := c.store.Delete(ctx, c.key(ownerID)); err != nil {
		log.Warn("task cache invalidation failed",
			slog.String("user_id", ownerID.String()),
			slog.String("error", err.Error()))
		return
	}

	log.Debug("task cache invalidated", slog.String("user_id", ownerID.String()))
}
