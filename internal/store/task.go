package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/domain"
)

// TaskFilter describes the criteria for a single-task lookup.
// OwnerID is mandatory; every other field is optional and combined with AND.
// It is the Go rendition of a document-store filter expression: the
// duplicate-detection policy builds its exact-match and same-title-and-
// timeframe probes out of these fields.
type TaskFilter struct {
	OwnerID uuid.UUID

	Title       *string
	Description *string
	Status      *domain.TaskStatus

	// DueAt matches tasks due at exactly this instant.
	DueAt *time.Time

	// DueAfter/DueBefore bound the due date inclusively on either side.
	DueAfter  *time.Time
	DueBefore *time.Time
}

// TaskUpdate carries the allow-listed mutable fields of a task.
// A nil field is left unchanged. The owner and creation timestamp are
// deliberately absent: they are immutable after creation.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *domain.TaskStatus
	DueDate     *time.Time
}

// TaskQuery describes the criteria for a filtered list query.
type TaskQuery struct {
	// Status, when set, restricts results to tasks with that status.
	Status *domain.TaskStatus

	// DueOnOrBefore, when set, restricts results to tasks due on or
	// before that instant.
	DueOnOrBefore *time.Time
}

// TaskStore defines the interface for task data persistence.
// All lookups and mutations are owner-scoped: a task belonging to another
// owner is indistinguishable from a non-existent task.
type TaskStore interface {
	// FindByOwner retrieves all tasks owned by the given user, ordered by
	// creation time descending. Returns an empty slice when the user owns
	// no tasks.
	FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)

	// FindOne retrieves a single task matching the filter.
	// Returns ErrTaskNotFound when no task matches.
	FindOne(ctx context.Context, filter TaskFilter) (*domain.Task, error)

	// Insert saves a new task to the store.
	// Returns ErrDuplicate when the insert violates the duplicate-backstop
	// unique constraint on (owner, title, due date, status).
	Insert(ctx context.Context, task *domain.Task) error

	// UpdateOne applies the given update to the task identified by
	// (id, ownerID) and returns the updated task.
	// Returns ErrTaskNotFound when the task does not exist or belongs to a
	// different owner.
	UpdateOne(ctx context.Context, id, ownerID uuid.UUID, update TaskUpdate) (*domain.Task, error)

	// DeleteOne removes the task identified by (id, ownerID) and returns
	// its prior state.
	// Returns ErrTaskNotFound when the task does not exist or belongs to a
	// different owner.
	DeleteOne(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error)

	// FindFiltered retrieves the tasks owned by the given user that match
	// the query, ordered by creation time descending.
	FindFiltered(ctx context.Context, ownerID uuid.UUID, query TaskQuery) ([]*domain.Task, error)
}
