package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tasklight/tasklight-api/internal/cache"
	"github.com/tasklight/tasklight-api/internal/domain"
	"github.com/tasklight/tasklight-api/internal/store"
)

// fakeTaskStore is an in-memory store.TaskStore with real filter semantics
// so the duplicate-detection probes exercise the same matching rules the
// SQL implementation provides.
type fakeTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	// insertErr, when set, is returned by Insert to simulate the unique
	// index backstop or other failures.
	insertErr error
	// findErr, when set, is returned by FindOne.
	findErr error
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (f *fakeTaskStore) FindByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*domain.Task
	for _, t := range f.tasks {
		if t.UserID == ownerID {
			copied := *t
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if out == nil {
		out = []*domain.Task{}
	}
	return out, nil
}

func (f *fakeTaskStore) FindOne(ctx context.Context, filter store.TaskFilter) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.findErr != nil {
		return nil, f.findErr
	}

	for _, t := range f.tasks {
		if matchesFilter(t, filter) {
			copied := *t
			return &copied, nil
		}
	}
	return nil, store.ErrTaskNotFound
}

func matchesFilter(t *domain.Task, filter store.TaskFilter) bool {
	if t.UserID != filter.OwnerID {
		return false
	}
	if filter.Title != nil && t.Title != *filter.Title {
		return false
	}
	if filter.Description != nil && t.Description != *filter.Description {
		return false
	}
	if filter.Status != nil && t.Status != *filter.Status {
		return false
	}
	if filter.DueAt != nil && !t.DueDate.Equal(*filter.DueAt) {
		return false
	}
	if filter.DueAfter != nil && t.DueDate.Before(*filter.DueAfter) {
		return false
	}
	if filter.DueBefore != nil && t.DueDate.After(*filter.DueBefore) {
		return false
	}
	return true
}

func (f *fakeTaskStore) Insert(ctx context.Context, task *domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeTaskStore) UpdateOne(ctx context.Context, id, ownerID uuid.UUID, update store.TaskUpdate) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id]
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

func (f *fakeTaskStore) DeleteOne(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tasks[id]
	if !ok || t.UserID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	delete(f.tasks, id)
	copied := *t
	return &copied, nil
}

func (f *fakeTaskStore) FindFiltered(ctx context.Context, ownerID uuid.UUID, query store.TaskQuery) ([]*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []*domain.Task{}
	for _, t := range f.tasks {
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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// fakeKVStore is an in-memory cache.Store covering only the plain KV
// operations the task cache uses.
type fakeKVStore struct {
	mu   sync.Mutex
	data map[string][]byte

	getErr    error
	setErr    error
	deleteErr error
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string][]byte)}
}

func (f *fakeKVStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	val, ok := f.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return val, nil
}

func (f *fakeKVStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeKVStore) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeKVStore) DeleteByPrefix(ctx context.Context, prefix string) error { return nil }

func (f *fakeKVStore) AddScored(ctx context.Context, key string, score float64, member string) error {
	return nil
}

func (f *fakeKVStore) RemoveRangeByScore(ctx context.Context, key string, min, max float64) error {
	return nil
}

func (f *fakeKVStore) RemoveMember(ctx context.Context, key, member string) error { return nil }

func (f *fakeKVStore) Cardinality(ctx context.Context, key string) (int64, error) { return 0, nil }

func (f *fakeKVStore) RangeWithScores(ctx context.Context, key string, start, stop int64) ([]cache.ScoredMember, error) {
	return nil, nil
}

func (f *fakeKVStore) Expire(ctx context.Context, key string, ttl time.Duration) error { return nil }

func (f *fakeKVStore) Ready(ctx context.Context) bool { return true }

func (f *fakeKVStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

var errStoreDown = errors.New("store unavailable")

// newTestTaskService wires a TaskService over the given fakes.
func newTestTaskService(repo *fakeTaskStore, kv *fakeKVStore) *TaskService {
	return NewTaskService(repo, NewTaskCache(kv, nil), nil)
}

// mustCreateTask seeds a task directly into the fake store.
func mustCreateTask(f *fakeTaskStore, ownerID uuid.UUID, title, description string, status domain.TaskStatus, dueDate time.Time) *domain.Task {
	task := &domain.Task{
		ID:          uuid.New(),
		UserID:      ownerID,
		Title:       title,
		Description: description,
		Status:      status,
		DueDate:     dueDate,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	f.mu.Lock()
	f.tasks[task.ID] = task
	f.mu.Unlock()
	return task
}
