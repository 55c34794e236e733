package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/domain"
	"github.com/tasklight/tasklight-api/internal/platform/logger"
	"github.com/tasklight/tasklight-api/internal/store"
)

// dueDateLayouts are the accepted due-date formats: a full timestamp or a
// bare date. A bare date is interpreted as midnight UTC.
var dueDateLayouts = []string{time.RFC3339, "2006-01-02"}

// CreateTaskInput carries the caller-supplied fields for task creation.
// DueDate is the raw string as submitted; parsing failures are a distinct
// validation outcome that precedes duplicate checking.
type CreateTaskInput struct {
	Title       string
	Description string
	Status      string
	DueDate     string
}

// UpdateTaskInput carries the allow-listed mutable fields for an update.
// A nil field is left unchanged. Unknown lists any field names in the
// request outside the allow-list; a non-empty Unknown rejects the update
// before any repository access.
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	DueDate     *string
	Unknown     []string
}

// TaskFilters carries the raw query-string filters for filtered listing.
type TaskFilters struct {
	Status  string
	DueDate string
}

// TaskService orchestrates task CRUD: the read-through list cache, the
// duplicate-detection gate, the mutation allow-list, and owner-scoped
// repository access.
type TaskService struct {
	repo   store.TaskStore
	cache  *TaskCache
	dup    duplicateChecker
	logger *slog.Logger
}

// NewTaskService creates a TaskService with the given repository and cache.
// If logger is nil, a default logger will be used.
func NewTaskService(repo store.TaskStore, cache *TaskCache, logger *slog.Logger) *TaskService {
	if repo == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task store cannot be nil for TaskService")
	}
	if cache == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task cache cannot be nil for TaskService")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "task_service"))

	return &TaskService{
		repo:   repo,
		cache:  cache,
		dup:    duplicateChecker{repo: repo, logger: logger},
		logger: logger,
	}
}

// GetTasks returns all tasks owned by ownerID, newest first, serving from
// the cache when possible. On a miss the repository result populates the
// cache; a cache failure never fails the read.
func (s *TaskService) GetTasks(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	if tasks, ok := s.cache.Get(ctx, ownerID); ok {
		return tasks, nil
	}

	tasks, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, NewDataAccessError("list tasks", err)
	}

	s.cache.Put(ctx, ownerID, tasks)
	return tasks, nil
}

// CreateTask validates the input, applies the duplicate-detection policy,
// persists the task, and invalidates the owner's cached list.
func (s *TaskService) CreateTask(ctx context.Context, ownerID uuid.UUID, input CreateTaskInput) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Due-date parsing failures reject before duplicate checking runs.
	dueDate, err := parseDueDate(input.DueDate)
	if err != nil {
		return nil, NewValidationError("dueDate", err.Error())
	}

	status := domain.TaskStatus(input.Status)
	if input.Status != "" && !status.IsValid() {
		return nil, NewValidationError("status", "status must be 'pending' or 'completed'")
	}

	task, err := domain.NewTask(ownerID, input.Title, input.Description, status, dueDate)
	if err != nil {
		return nil, NewValidationError("", err.Error())
	}

	if err := s.dup.check(ctx, ownerID, task); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, task); err != nil {
		// The unique-index backstop converts the narrow check-then-insert
		// race into a conflict at insert time.
		if errors.Is(err, store.ErrDuplicate) {
			return nil, s.conflictFromBackstop(ctx, ownerID, task)
		}
		if errors.Is(err, store.ErrInvalidEntity) {
			return nil, NewValidationError("", err.Error())
		}
		return nil, NewDataAccessError("create task", err)
	}

	s.cache.Invalidate(ctx, ownerID)

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", ownerID.String()))
	return task, nil
}

// UpdateTask applies an allow-listed update to the task identified by
// (taskID, ownerID) and invalidates the owner's cached list.
// A task owned by someone else is indistinguishable from a missing task.
func (s *TaskService) UpdateTask(
	ctx context.Context,
	taskID, ownerID uuid.UUID,
	input UpdateTaskInput,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	// Reject disallowed fields before any repository access.
	if len(input.Unknown) > 0 {
		return nil, NewValidationError(input.Unknown[0],
			fmt.Sprintf("field %q is not updatable", input.Unknown[0]))
	}

	update := store.TaskUpdate{
		Title:       input.Title,
		Description: input.Description,
	}

	if input.Title != nil && *input.Title == "" {
		return nil, NewValidationError("title", "title cannot be empty")
	}

	if input.Status != nil {
		status := domain.TaskStatus(*input.Status)
		if !status.IsValid() {
			return nil, NewValidationError("status", "status must be 'pending' or 'completed'")
		}
		update.Status = &status
	}

	if input.DueDate != nil {
		dueDate, err := parseDueDate(*input.DueDate)
		if err != nil {
			return nil, NewValidationError("dueDate", err.Error())
		}
		update.DueDate = &dueDate
	}

	task, err := s.repo.UpdateOne(ctx, taskID, ownerID, update)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, store.ErrTaskNotFound
		}
		if errors.Is(err, store.ErrDuplicate) {
			return nil, s.conflictFromBackstop(ctx, ownerID, task)
		}
		return nil, NewDataAccessError("update task", err)
	}

	s.cache.Invalidate(ctx, ownerID)

	log.Info("task updated",
		slog.String("task_id", taskID.String()),
		slog.String("user_id", ownerID.String()))
	return task, nil
}

// DeleteTask removes the task identified by (taskID, ownerID), invalidates
// the owner's cached list, and returns the task's prior state.
func (s *TaskService) DeleteTask(ctx context.Context, taskID, ownerID uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.repo.DeleteOne(ctx, taskID, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, store.ErrTaskNotFound
		}
		return nil, NewDataAccessError("delete task", err)
	}

	s.cache.Invalidate(ctx, ownerID)

	log.Info("task deleted",
		slog.String("task_id", taskID.String()),
		slog.String("user_id", ownerID.String()))
	return task, nil
}

// GetFilteredTasks returns the owner's tasks matching the given filters.
// An unrecognized status yields an empty result rather than an error; an
// unparseable due date is a hard validation failure. The due-date filter
// constrains results to tasks due on or before that date.
func (s *TaskService) GetFilteredTasks(
	ctx context.Context,
	ownerID uuid.UUID,
	filters TaskFilters,
) ([]*domain.Task, error) {
	query := store.TaskQuery{}

	if filters.Status != "" {
		status := domain.TaskStatus(filters.Status)
		if !status.IsValid() {
			// Soft failure: a nonsense status matches nothing.
			return []*domain.Task{}, nil
		}
		query.Status = &status
	}

	if filters.DueDate != "" {
		dueDate, err := parseDueDate(filters.DueDate)
		if err != nil {
			return nil, NewValidationError("dueDate", err.Error())
		}
		// A bare date bounds inclusively through the end of that day.
		if len(filters.DueDate) == len("2006-01-02") {
			dueDate = dueDate.Add(24*time.Hour - time.Millisecond)
		}
		query.DueOnOrBefore = &dueDate
	}

	tasks, err := s.repo.FindFiltered(ctx, ownerID, query)
	if err != nil {
		return nil, NewDataAccessError("filter tasks", err)
	}
	return tasks, nil
}

// conflictFromBackstop builds the conflict outcome for an insert-time
// unique violation, re-probing for the matched task so the response can
// reference it. The probe is best-effort; the conflict stands regardless.
func (s *TaskService) conflictFromBackstop(ctx context.Context, ownerID uuid.UUID, task *domain.Task) error {
	conflict := &ConflictError{Reason: ReasonExactMatch}
	if task == nil {
		return conflict
	}
	match, err := s.repo.FindOne(ctx, store.TaskFilter{
		OwnerID: ownerID,
		Title:   &task.Title,
		Status:  &task.Status,
		DueAt:   &task.DueDate,
	})
	if err == nil {
		conflict.TaskID = match.ID
	}
	return conflict
}

// parseDueDate parses a due date in RFC 3339 or bare-date form into UTC.
func parseDueDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("due date is required")
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid due date %q: expected RFC 3339 timestamp or YYYY-MM-DD", value)
}
