package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasklight/tasklight-api/internal/api/shared"
	"github.com/tasklight/tasklight-api/internal/cache"
	"github.com/tasklight/tasklight-api/internal/domain"
	"github.com/tasklight/tasklight-api/internal/service"
	"github.com/tasklight/tasklight-api/internal/store"
)

// memTaskStore is an in-memory store.TaskStore for handler tests.
type memTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (m *memTaskStore) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range m.tasks {
		if t.UserID == ownerID {
			copied := *t
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memTaskStore) FindOne(ctx context.Context, filter store.TaskFilter) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.UserID != filter.OwnerID {
			continue
		}
		if filter.Title != nil && t.Title != *filter.Title {
			continue
		}
		if filter.Description != nil && t.Description != *filter.Description {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.DueAt != nil && !t.DueDate.Equal(*filter.DueAt) {
			continue
		}
		if filter.DueAfter != nil && t.DueDate.Before(*filter.DueAfter) {
			continue
		}
		if filter.DueBefore != nil && t.DueDate.After(*filter.DueBefore) {
			continue
		}
		copied := *t
		return &copied, nil
	}
	return nil, store.ErrTaskNotFound
}

func (m *memTaskStore) Insert(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *memTaskStore) UpdateOne(ctx context.Context, id, ownerID uuid.UUID, update store.TaskUpdate) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	if update.Title != nil {
		t.Title = *update.Title
	}
	if update.Description != nil {
		t.Description = *update.Description
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.DueDate != nil {
		t.DueDate = *update.DueDate
	}
	t.UpdatedAt = time.Now().UTC()
	copied := *t
	return &copied, nil
}

func (m *memTaskStore) DeleteOne(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	delete(m.tasks, id)
	copied := *t
	return &copied, nil
}

func (m *memTaskStore) FindFiltered(ctx context.Context, ownerID uuid.UUID, query store.TaskQuery) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range m.tasks {
		if t.UserID != ownerID {
			continue
		}
		if query.Status != nil && t.Status != *query.Status {
			continue
		}
		if query.DueOnOrBefore != nil && t.DueDate.After(*query.DueOnOrBefore) {
			continue
		}
		copied := *t
		out = append(out, &copied)
	}
	return out, nil
}

// nullCache is a cache.Store on which every read misses and every write is
// discarded. Handler tests exercise the repository path.
type nullCache struct{}

func (nullCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, cache.ErrCacheMiss
}

func (nullCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (nullCache) Delete(ctx context.Context, keys ...string) error            { return nil }
func (nullCache) DeleteByPrefix(ctx context.Context, prefix string) error     { return nil }
func (nullCache) AddScored(ctx context.Context, key string, score float64, member string) error {
	return nil
}

func (nullCache) RemoveRangeByScore(ctx context.Context, key string, min, max float64) error {
	return nil
}

func (nullCache) RemoveMember(ctx context.Context, key, member string) error { return nil }
func (nullCache) Cardinality(ctx context.Context, key string) (int64, error) { return 0, nil }
func (nullCache) RangeWithScores(ctx context.Context, key string, start, stop int64) ([]cache.ScoredMember, error) {
	return nil, nil
}
func (nullCache) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }
func (nullCache) Ready(ctx context.Context) bool                                  { return true }

// newTaskTestRouter wires the task handler behind a router with the given
// user injected as the authenticated identity.
func newTaskTestRouter(repo store.TaskStore, userID uuid.UUID) http.Handler {
	svc := service.NewTaskService(repo, service.NewTaskCache(nullCache{}, nil), nil)
	handler := NewTaskHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), shared.UserIDContextKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/api/tasks", handler.GetTasks)
	r.Post("/api/tasks", handler.CreateTask)
	r.Get("/api/tasks/filter", handler.GetFilteredTasks)
	r.Put("/api/tasks/{id}", handler.UpdateTask)
	r.Delete("/api/tasks/{id}", handler.DeleteTask)
	return r
}

func seedTask(repo *memTaskStore, ownerID uuid.UUID, title string, due time.Time) *domain.Task {
	task := &domain.Task{
		ID:        uuid.New(),
		UserID:    ownerID,
		Title:     title,
		Status:    domain.TaskStatusPending,
		DueDate:   due,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	repo.mu.Lock()
	repo.tasks[task.ID] = task
	repo.mu.Unlock()
	return task
}

func TestCreateTaskEndpoint(t *testing.T) {
	t.Parallel()

	repo := newMemTaskStore()
	userID := uuid.New()
	router := newTaskTestRouter(repo, userID)

	body := `{"title":"Pay rent","dueDate":"2025-12-31","status":"pending"}`
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Pay rent", created.Title)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, userID.String(), created.UserID)
}

func TestCreateTaskEndpointDuplicateConflict(t *testing.T) {
	t.Parallel()

	repo := newMemTaskStore()
	userID := uuid.New()
	router := newTaskTestRouter(repo, userID)

	body := `{"title":"Pay rent","dueDate":"2025-12-31"}`
	first := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	firstRec := httptest.NewRecorder()
	router.ServeHTTP(firstRec, first)
	require.Equal(t, http.StatusCreated, firstRec.Code)

	var created TaskResponse
	require.NoError(t, json.Unmarshal(firstRec.Body.Bytes(), &created))

	second := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body))
	secondRec := httptest.NewRecorder()
	router.ServeHTTP(secondRec, second)

	require.Equal(t, http.StatusConflict, secondRec.Code)

	var errBody shared.ErrorResponse
	require.NoError(t, json.Unmarshal(secondRec.Body.Bytes(), &errBody))
	assert.Equal(t, service.ReasonExactMatch, errBody.Error)
	assert.Equal(t, created.ID, errBody.TaskID)
}

func TestUpdateTaskEndpointRejectsUnknownField(t *testing.T) {
	t.Parallel()

	repo := newMemTaskStore()
	userID := uuid.New()
	router := newTaskTestRouter(repo, userID)

	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	task := seedTask(repo, userID, "Pay rent", due)

	body := `{"title":"New title","owner":"someone-else"}`
	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+task.ID.String(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The rejected update must not have been applied.
	stored, err := repo.DeleteOne(context.Background(), task.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, "Pay rent", stored.Title)
}

func TestUpdateTaskEndpointOtherOwner404(t *testing.T) {
	t.Parallel()

	repo := newMemTaskStore()
	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	otherOwner := uuid.New()
	task := seedTask(repo, otherOwner, "Pay rent", due)

	// Authenticated as a different user than the task's owner.
	router := newTaskTestRouter(repo, uuid.New())

	body := `{"title":"Hijacked"}`
	req := httptest.NewRequest(http.MethodPut, "/api/tasks/"+task.ID.String(), strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateTaskEndpointInvalidID(t *testing.T) {
	t.Parallel()

	router := newTaskTestRouter(newMemTaskStore(), uuid.New())

	req := httptest.NewRequest(http.MethodPut, "/api/tasks/not-a-uuid", strings.NewReader(`{"title":"x"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTaskEndpointReturnsPriorState(t *testing.T) {
	t.Parallel()

	repo := newMemTaskStore()
	userID := uuid.New()
	router := newTaskTestRouter(repo, userID)

	due := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	task := seedTask(repo, userID, "Pay rent", due)

	req := httptest.NewRequest(http.MethodDelete, "/api/tasks/"+task.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var deleted TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deleted))
	assert.Equal(t, task.ID.String(), deleted.ID)

	again := httptest.NewRequest(http.MethodDelete, "/api/tasks/"+task.ID.String(), nil)
	againRec := httptest.NewRecorder()
	router.ServeHTTP(againRec, again)
	assert.Equal(t, http.StatusNotFound, againRec.Code)
}

func TestGetTasksEndpointAlwaysReturnsArray(t *testing.T) {
	t.Parallel()

	router := newTaskTestRouter(newMemTaskStore(), uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}

func TestGetFilteredTasksEndpoint(t *testing.T) {
	t.Parallel()

	repo := newMemTaskStore()
	userID := uuid.New()
	router := newTaskTestRouter(repo, userID)

	due := time.Date(2025, 12, 31, 23, 0, 0, 0, time.UTC)
	seedTask(repo, userID, "Pay rent", due)
	seedTask(repo, userID, "File taxes", due.AddDate(0, 1, 0))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/filter?status=pending&dueDate=2025-12-31", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []TaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "Pay rent", tasks[0].Title)

	// Unknown status values match nothing instead of erroring.
	req = httptest.NewRequest(http.MethodGet, "/api/tasks/filter?status=archived", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	// A malformed dueDate filter is a hard validation failure.
	req = httptest.NewRequest(http.MethodGet, "/api/tasks/filter?dueDate=31-12-2025", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
