package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklight/tasklight-api/internal/domain"
	"github.com/tasklight/tasklight-api/internal/store"
)

func TestGetTasksPopulatesCacheOnMiss(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	kv := newFakeKVStore()
	svc := newTestTaskService(repo, kv)

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	seeded := mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)

	ctx := context.Background()
	tasks, err := svc.GetTasks(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, seeded.ID, tasks[0].ID)

	// The miss populated the cache under the owner's key.
	assert.True(t, kv.has("tasks:"+ownerID.String()))
}

func TestGetTasksServesFromCache(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	kv := newFakeKVStore()
	svc := newTestTaskService(repo, kv)

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	seeded := mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)

	ctx := context.Background()
	_, err := svc.GetTasks(ctx, ownerID)
	require.NoError(t, err)

	// Mutate the repository behind the cache's back: the cached list is
	// served until an invalidation.
	repo.mu.Lock()
	delete(repo.tasks, seeded.ID)
	repo.mu.Unlock()

	tasks, err := svc.GetTasks(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestGetTasksSurvivesCacheFailure(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	kv := newFakeKVStore()
	kv.getErr = errStoreDown
	kv.setErr = errStoreDown
	svc := newTestTaskService(repo, kv)

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)

	tasks, err := svc.GetTasks(context.Background(), ownerID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestCreateTaskInvalidatesCache(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	kv := newFakeKVStore()
	svc := newTestTaskService(repo, kv)

	ownerID := uuid.New()
	ctx := context.Background()

	// Warm the cache with the empty list.
	_, err := svc.GetTasks(ctx, ownerID)
	require.NoError(t, err)
	require.True(t, kv.has("tasks:"+ownerID.String()))

	task, err := svc.CreateTask(ctx, ownerID, CreateTaskInput{
		Title:   "Pay rent",
		DueDate: "2025-12-31",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, task.Status)

	// The stale empty list was dropped; the next read sees the new task.
	assert.False(t, kv.has("tasks:"+ownerID.String()))
	tasks, err := svc.GetTasks(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestCreateTaskRejectsInvalidDueDate(t *testing.T) {
	t.Parallel()

	svc := newTestTaskService(newFakeTaskStore(), newFakeKVStore())

	_, err := svc.CreateTask(context.Background(), uuid.New(), CreateTaskInput{
		Title:   "Pay rent",
		DueDate: "not-a-date",
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "dueDate", validationErr.Field)
}

func TestCreateTaskRejectsInvalidStatus(t *testing.T) {
	t.Parallel()

	svc := newTestTaskService(newFakeTaskStore(), newFakeKVStore())

	_, err := svc.CreateTask(context.Background(), uuid.New(), CreateTaskInput{
		Title:   "Pay rent",
		Status:  "done",
		DueDate: "2025-12-31",
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "status", validationErr.Field)
}

func TestCreateTaskBackstopConflict(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	repo.insertErr = store.ErrDuplicate
	svc := newTestTaskService(repo, newFakeKVStore())

	// The store reports a unique violation even though the pre-insert
	// check saw nothing: the concurrent-create race resolved against us.
	_, err := svc.CreateTask(context.Background(), uuid.New(), CreateTaskInput{
		Title:   "Pay rent",
		DueDate: "2025-12-31",
	})

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Equal(t, ReasonExactMatch, conflictErr.Reason)
}

func TestUpdateTaskRejectsUnknownFieldBeforeRepoAccess(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	repo.findErr = errStoreDown // any repo access would surface this
	svc := newTestTaskService(repo, newFakeKVStore())

	title := "New title"
	_, err := svc.UpdateTask(context.Background(), uuid.New(), uuid.New(), UpdateTaskInput{
		Title:   &title,
		Unknown: []string{"owner"},
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "owner", validationErr.Field)
}

func TestUpdateTaskRejectsEmptyTitle(t *testing.T) {
	t.Parallel()

	svc := newTestTaskService(newFakeTaskStore(), newFakeKVStore())

	empty := ""
	_, err := svc.UpdateTask(context.Background(), uuid.New(), uuid.New(), UpdateTaskInput{
		Title: &empty,
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "title", validationErr.Field)
}

func TestUpdateTaskAppliesFieldsAndInvalidates(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	kv := newFakeKVStore()
	svc := newTestTaskService(repo, kv)

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	seeded := mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)

	ctx := context.Background()
	_, err := svc.GetTasks(ctx, ownerID)
	require.NoError(t, err)

	status := "completed"
	updated, err := svc.UpdateTask(ctx, seeded.ID, ownerID, UpdateTaskInput{
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, updated.Status)
	assert.Equal(t, "Pay rent", updated.Title)
	assert.False(t, kv.has("tasks:"+ownerID.String()))
}

func TestUpdateTaskOtherOwnerLooksNotFound(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	svc := newTestTaskService(repo, newFakeKVStore())

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	seeded := mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)

	title := "Hijacked"
	_, err := svc.UpdateTask(context.Background(), seeded.ID, uuid.New(), UpdateTaskInput{
		Title: &title,
	})

	// Someone else's task is indistinguishable from a missing one.
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestDeleteTaskReturnsPriorStateAndInvalidates(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	kv := newFakeKVStore()
	svc := newTestTaskService(repo, kv)

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	seeded := mustCreateTask(repo, ownerID, "Pay rent", "notes", domain.TaskStatusPending, due)

	ctx := context.Background()
	_, err := svc.GetTasks(ctx, ownerID)
	require.NoError(t, err)

	deleted, err := svc.DeleteTask(ctx, seeded.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, deleted.ID)
	assert.Equal(t, "notes", deleted.Description)
	assert.False(t, kv.has("tasks:"+ownerID.String()))

	_, err = svc.DeleteTask(ctx, seeded.ID, ownerID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestGetFilteredTasksInvalidStatusYieldsEmpty(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	svc := newTestTaskService(repo, newFakeKVStore())

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)

	tasks, err := svc.GetFilteredTasks(context.Background(), ownerID, TaskFilters{
		Status: "archived",
	})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// Repeating the same nonsense filter is idempotent.
	tasks, err = svc.GetFilteredTasks(context.Background(), ownerID, TaskFilters{
		Status: "archived",
	})
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestGetFilteredTasksInvalidDueDateFails(t *testing.T) {
	t.Parallel()

	svc := newTestTaskService(newFakeTaskStore(), newFakeKVStore())

	_, err := svc.GetFilteredTasks(context.Background(), uuid.New(), TaskFilters{
		DueDate: "31-12-2025",
	})

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "dueDate", validationErr.Field)
}

func TestGetFilteredTasksBareDateIncludesWholeDay(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	svc := newTestTaskService(repo, newFakeKVStore())

	ownerID := uuid.New()
	// Due late in the evening of the filter date.
	due := time.Date(2025, 12, 31, 23, 30, 0, 0, time.UTC)
	mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)
	// Due the next day, outside the filter.
	mustCreateTask(repo, ownerID, "Buy groceries", "", domain.TaskStatusPending, due.Add(time.Hour))

	tasks, err := svc.GetFilteredTasks(context.Background(), ownerID, TaskFilters{
		DueDate: "2025-12-31",
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Pay rent", tasks[0].Title)
}

func TestGetFilteredTasksByStatus(t *testing.T) {
	t.Parallel()

	repo := newFakeTaskStore()
	svc := newTestTaskService(repo, newFakeKVStore())

	ownerID := uuid.New()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	mustCreateTask(repo, ownerID, "Pay rent", "", domain.TaskStatusPending, due)
	mustCreateTask(repo, ownerID, "File taxes", "", domain.TaskStatusCompleted, due)

	tasks, err := svc.GetFilteredTasks(context.Background(), ownerID, TaskFilters{
		Status: "completed",
	})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "File taxes", tasks[0].Title)
}

func TestGetTasksWrapsRepositoryFailure(t *testing.T) {
	t.Parallel()

	failing := &failingListStore{fakeTaskStore: newFakeTaskStore()}
	svc := NewTaskService(failing, NewTaskCache(newFakeKVStore(), nil), nil)

	_, err := svc.GetTasks(context.Background(), uuid.New())

	var dataErr *DataAccessError
	require.ErrorAs(t, err, &dataErr)
	assert.True(t, errors.Is(err, errStoreDown))
}

// failingListStore fails the owner-list query while delegating everything
// else to the embedded fake.
type failingListStore struct {
	*fakeTaskStore
}

func (f *failingListStore) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	return nil, errStoreDown
}
