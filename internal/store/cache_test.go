package store

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/apperr"
	"taskmanagement-api/internal/config"
)

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]api.Task
	generations map[string]int64
	gets        int
	hits        int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]api.Task{}, generations: map[string]int64{}}
}

func (m *memoryCache) Get(_ context.Context, ownerID, id int64) (api.Task, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	task, ok := m.entries[taskCacheKey(ownerID, id)]
	if ok {
		m.hits++
	}
	return task, ok, nil
}

func (m *memoryCache) Generation(_ context.Context, ownerID, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[taskCacheKey(ownerID, id)], nil
}

func (m *memoryCache) Fill(_ context.Context, task api.Task, generation int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := taskCacheKey(task.OwnerID, task.ID)
	if m.generations[key] == generation {
		m.entries[key] = task
	}
	return nil
}

func (m *memoryCache) Invalidate(_ context.Context, ownerID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := taskCacheKey(ownerID, id)
	m.generations[key]++
	delete(m.entries, key)
	return nil
}

// racingRepository runs duringRead once, after the database read of GetTask
// and before the caller sees the result.
type racingRepository struct {
	TaskRepository
	duringRead func()
}

func (r *racingRepository) GetTask(ctx context.Context, ownerID, id int64) (api.Task, error) {
	task, err := r.TaskRepository.GetTask(ctx, ownerID, id)
	if hook := r.duringRead; hook != nil {
		r.duringRead = nil
		hook()
	}
	return task, err
}

func TestCachedTasksReadThroughAndInvalidate(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	owner := mustUser(t, s, "a@x.com")
	cache := newMemoryCache()
	tasks := NewCachedTasks(s, cache, log.New(&bytes.Buffer{}, "", 0))

	created, err := tasks.CreateTask(ctx, owner, api.NewTask{Title: "cached"})
	require.NoError(t, err)

	first, err := tasks.GetTask(ctx, owner, created.ID)
	require.NoError(t, err)
	second, err := tasks.GetTask(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.hits)

	completed, err := tasks.SetCompletion(ctx, owner, created.ID, true)
	require.NoError(t, err)
	assert.NotContains(t, cache.entries, taskCacheKey(owner, created.ID))

	third, err := tasks.GetTask(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, completed, third)
	assert.True(t, third.IsComplete)

	deleted, err := tasks.DeleteTask(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = tasks.GetTask(ctx, owner, created.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCachedTasksDropsFillRacingAWrite(t *testing.T) {
	tests := []struct {
		name  string
		write func(t *testing.T, tasks *CachedTasks, owner, id int64)
		check func(t *testing.T, got api.Task, err error)
	}{
		{
			name: "delete",
			write: func(t *testing.T, tasks *CachedTasks, owner, id int64) {
				deleted, err := tasks.DeleteTask(context.Background(), owner, id)
				require.NoError(t, err)
				require.True(t, deleted)
			},
			check: func(t *testing.T, _ api.Task, err error) {
				assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
			},
		},
		{
			name: "update",
			write: func(t *testing.T, tasks *CachedTasks, owner, id int64) {
				_, err := tasks.UpdateTask(context.Background(), owner, id, api.TaskUpdate{Title: "renamed", IsComplete: true})
				require.NoError(t, err)
			},
			check: func(t *testing.T, got api.Task, err error) {
				require.NoError(t, err)
				assert.Equal(t, "renamed", got.Title)
				assert.True(t, got.IsComplete)
			},
		},
		{
			name: "complete",
			write: func(t *testing.T, tasks *CachedTasks, owner, id int64) {
				_, err := tasks.SetCompletion(context.Background(), owner, id, true)
				require.NoError(t, err)
			},
			check: func(t *testing.T, got api.Task, err error) {
				require.NoError(t, err)
				assert.True(t, got.IsComplete)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSQLiteStore(t)
			ctx := context.Background()
			owner := mustUser(t, s, "a@x.com")
			cache := newMemoryCache()
			repo := &racingRepository{TaskRepository: s}
			tasks := NewCachedTasks(repo, cache, log.New(&bytes.Buffer{}, "", 0))

			created, err := tasks.CreateTask(ctx, owner, api.NewTask{Title: "original"})
			require.NoError(t, err)

			repo.duringRead = func() { tt.write(t, tasks, owner, created.ID) }
			stale, err := tasks.GetTask(ctx, owner, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "original", stale.Title)
			assert.NotContains(t, cache.entries, taskCacheKey(owner, created.ID))

			got, err := tasks.GetTask(ctx, owner, created.ID)
			tt.check(t, got, err)
		})
	}
}

func TestCachedTasksKeysByOwner(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	alice := mustUser(t, s, "alice@x.com")
	bob := mustUser(t, s, "bob@x.com")
	tasks := NewCachedTasks(s, newMemoryCache(), log.New(&bytes.Buffer{}, "", 0))

	created, err := tasks.CreateTask(ctx, alice, api.NewTask{Title: "private"})
	require.NoError(t, err)
	_, err = tasks.GetTask(ctx, alice, created.ID)
	require.NoError(t, err)

	_, err = tasks.GetTask(ctx, bob, created.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCachedTasksSurvivesRedisOutage(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	owner := mustUser(t, s, "a@x.com")

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	var logs bytes.Buffer
	tasks := NewCachedTasks(s, NewRedisTaskCache(client, time.Minute), log.New(&logs, "", 0))

	created, err := tasks.CreateTask(ctx, owner, api.NewTask{Title: "still works"})
	require.NoError(t, err)

	got, err := tasks.GetTask(ctx, owner, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = tasks.SetCompletion(ctx, owner, created.ID, true)
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "WARN: cache read failed for task:")
	assert.Contains(t, logs.String(), "WARN: Failed to delete the cache key")
}

func TestOpenRedisRequiresAddr(t *testing.T) {
	_, err := OpenRedis(context.Background(), config.RedisConfig{})
	assert.Error(t, err)
}
