package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/domain"
	"github.com/tasklight/tasklight-api/internal/platform/logger"
	"github.com/tasklight/tasklight-api/internal/store"
)

// nearDuplicateWindow is how far apart two due dates can be while still
// counting as "the same timeframe" for the near-duplicate rule.
const nearDuplicateWindow = 24 * time.Hour

// duplicateChecker applies the pre-insert duplicate-detection policy.
//
// Two independent rules, either of which blocks creation:
//  1. exact match: same owner, identical title, description, due date, and
//     status;
//  2. near duplicate: an existing *pending* task with the same title and a
//     due date within 24 hours of the candidate's, regardless of
//     description or exact status equality.
//
// The exact-match rule is evaluated strictly first and short-circuits: the
// near-duplicate probe only runs when no exact match exists.
//
// The check-then-insert sequence is not atomic against the repository; the
// unique index on (owner, title, due date, status) backstops the exact rule
// at insert time.
type duplicateChecker struct {
	repo   store.TaskStore
	logger *slog.Logger
}

// check returns a ConflictError when the candidate duplicates an existing
// task owned by ownerID, nil when creation may proceed, and a
// DataAccessError on repository failure.
func (d *duplicateChecker) check(ctx context.Context, ownerID uuid.UUID, candidate *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, d.logger)

	// Rule 1: exact match.
	exact := store.TaskFilter{
		OwnerID:     ownerID,
		Title:       &candidate.Title,
		Description: &candidate.Description,
		Status:      &candidate.Status,
		DueAt:       &candidate.DueDate,
	}

	match, err := d.repo.FindOne(ctx, exact)
	if err == nil {
		log.Debug("duplicate task blocked: exact match",
			slog.String("user_id", ownerID.String()),
			slog.String("matched_task_id", match.ID.String()))
		return &ConflictError{TaskID: match.ID, Reason: ReasonExactMatch}
	}
	if !errors.Is(err, store.ErrTaskNotFound) {
		return NewDataAccessError("duplicate check", err)
	}

	// Rule 2: same title and timeframe among pending tasks.
	pending := domain.TaskStatusPending
	after := candidate.DueDate.Add(-nearDuplicateWindow)
	before := candidate.DueDate.Add(nearDuplicateWindow)
	near := store.TaskFilter{
		OwnerID:   ownerID,
		Title:     &candidate.Title,
		Status:    &pending,
		DueAfter:  &after,
		DueBefore: &before,
	}

	match, err = d.repo.FindOne(ctx, near)
	if err == nil {
		log.Debug("duplicate task blocked: same title and timeframe",
			slog.String("user_id", ownerID.String()),
			slog.String("matched_task_id", match.ID.String()))
		return &ConflictError{TaskID: match.ID, Reason: ReasonSameTitleTimeframe}
	}
	if !errors.Is(err, store.ErrTaskNotFound) {
		return NewDataAccessError("duplicate check", err)
	}

	return nil
}
