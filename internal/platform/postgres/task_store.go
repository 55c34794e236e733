package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/domain"
	"github.com/tasklight/tasklight-api/internal/platform/logger"
	"github.com/tasklight/tasklight-api/internal/store"
)

// taskColumns is the column list shared by every task SELECT.
const taskColumns = "id, user_id, title, description, status, due_date, created_at, updated_at"

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// FindByOwner implements store.TaskStore.FindByOwner
// It retrieves all tasks owned by the given user, newest first.
func (s *PostgresTaskStore) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		log.Error("failed to query tasks by owner",
			slog.String("error", err.Error()),
			slog.String("user_id", ownerID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	return scanTasks(rows)
}

// FindOne implements store.TaskStore.FindOne
// Returns store.ErrTaskNotFound when no task matches the filter.
func (s *PostgresTaskStore) FindOne(ctx context.Context, filter store.TaskFilter) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where := []string{"user_id = $1"}
	args := []any{filter.OwnerID}

	addClause := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if filter.Title != nil {
		addClause("title = $%d", *filter.Title)
	}
	if filter.Description != nil {
		addClause("description = $%d", *filter.Description)
	}
	if filter.Status != nil {
		addClause("status = $%d", string(*filter.Status))
	}
	if filter.DueAt != nil {
		addClause("due_date = $%d", filter.DueAt.UTC())
	}
	if filter.DueAfter != nil {
		addClause("due_date >= $%d", filter.DueAfter.UTC())
	}
	if filter.DueBefore != nil {
		addClause("due_date <= $%d", filter.DueBefore.UTC())
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at ASC
		LIMIT 1
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to find task",
			slog.String("error", err.Error()),
			slog.String("user_id", filter.OwnerID.String()))
		return nil, err
	}

	return task, nil
}

// Insert implements store.TaskStore.Insert
// Returns store.ErrDuplicate when the row violates the duplicate-backstop
// unique index on (user_id, title, due_date, status).
// Returns store.ErrInvalidEntity when the owner does not exist.
func (s *PostgresTaskStore) Insert(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during insert",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO tasks (id, user_id, title, description, status, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		task.ID,
		task.UserID,
		task.Title,
		task.Description,
		string(task.Status),
		task.DueDate.UTC(),
		task.CreatedAt,
		task.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			log.Debug("duplicate task blocked by unique index",
				slog.String("task_id", task.ID.String()),
				slog.String("user_id", task.UserID.String()))
			return store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			log.Warn("foreign key violation during task creation",
				slog.String("task_id", task.ID.String()),
				slog.String("user_id", task.UserID.String()))
			return fmt.Errorf("%w: user with ID %s not found",
				store.ErrInvalidEntity, task.UserID)
		}

		log.Error("failed to insert task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()),
			slog.String("user_id", task.UserID.String()))
		return err
	}

	log.Info("task created successfully",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()),
		slog.String("status", string(task.Status)))
	return nil
}

// UpdateOne implements store.TaskStore.UpdateOne
// The update is applied and the fresh row returned in a single round trip
// via RETURNING. Owner scoping is part of the WHERE clause, so a task owned
// by someone else behaves exactly like a missing task.
func (s *PostgresTaskStore) UpdateOne(
	ctx context.Context,
	id, ownerID uuid.UUID,
	update store.TaskUpdate,
) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	set := []string{}
	args := []any{}

	addSet := func(clause string, arg any) {
		args = append(args, arg)
		set = append(set, fmt.Sprintf(clause, len(args)))
	}

	if update.Title != nil {
		addSet("title = $%d", *update.Title)
	}
	if update.Description != nil {
		addSet("description = $%d", *update.Description)
	}
	if update.Status != nil {
		addSet("status = $%d", string(*update.Status))
	}
	if update.DueDate != nil {
		addSet("due_date = $%d", update.DueDate.UTC())
	}
	addSet("updated_at = $%d", time.Now().UTC())

	args = append(args, id)
	idArg := len(args)
	args = append(args, ownerID)
	ownerArg := len(args)

	query := fmt.Sprintf(`
		UPDATE tasks
		SET %s
		WHERE id = $%d AND user_id = $%d
		RETURNING `+taskColumns+`
	`, strings.Join(set, ", "), idArg, ownerArg)

	task, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found for update",
				slog.String("task_id", id.String()),
				slog.String("user_id", ownerID.String()))
			return nil, store.ErrTaskNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		log.Error("failed to update task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	log.Info("task updated successfully",
		slog.String("task_id", id.String()),
		slog.String("user_id", ownerID.String()))
	return task, nil
}

// DeleteOne implements store.TaskStore.DeleteOne
// Returns the deleted task's prior state via RETURNING.
func (s *PostgresTaskStore) DeleteOne(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		DELETE FROM tasks
		WHERE id = $1 AND user_id = $2
		RETURNING ` + taskColumns + `
	`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("task not found for delete",
				slog.String("task_id", id.String()),
				slog.String("user_id", ownerID.String()))
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, err
	}

	log.Info("task deleted successfully",
		slog.String("task_id", id.String()),
		slog.String("user_id", ownerID.String()))
	return task, nil
}

// FindFiltered implements store.TaskStore.FindFiltered
func (s *PostgresTaskStore) FindFiltered(
	ctx context.Context,
	ownerID uuid.UUID,
	query store.TaskQuery,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	where := []string{"user_id = $1"}
	args := []any{ownerID}

	if query.Status != nil {
		args = append(args, string(*query.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if query.DueOnOrBefore != nil {
		args = append(args, query.DueOnOrBefore.UTC())
		where = append(where, fmt.Sprintf("due_date <= $%d", len(args)))
	}

	sqlQuery := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		log.Error("failed to query filtered tasks",
			slog.String("error", err.Error()),
			slog.String("user_id", ownerID.String()))
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			log.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	return scanTasks(rows)
}

// rowScanner abstracts *sql.Row and *sql.Rows for task scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask maps a single row onto a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var task domain.Task
	var status string
	var description sql.NullString

	err := row.Scan(
		&task.ID,
		&task.UserID,
		&task.Title,
		&description,
		&status,
		&task.DueDate,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Status = domain.TaskStatus(status)
	return &task, nil
}

// scanTasks drains rows into a task slice, returning an empty slice rather
// than nil when no rows match.
func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}
