package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"taskmanagement-api/internal/api"
	"taskmanagement-api/internal/config"
)

// TaskRepository is the owner-scoped task API shared by Store and CachedTasks.
type TaskRepository interface {
	ListTasks(ctx context.Context, ownerID int64, q api.ListQuery) ([]api.Task, int, error)
	GetTask(ctx context.Context, ownerID, id int64) (api.Task, error)
	CreateTask(ctx context.Context, ownerID int64, in api.NewTask) (api.Task, error)
	UpdateTask(ctx context.Context, ownerID, id int64, in api.TaskUpdate) (api.Task, error)
	SetCompletion(ctx context.Context, ownerID, id int64, complete bool) (api.Task, error)
	DeleteTask(ctx context.Context, ownerID, id int64) (bool, error)
}

var _ TaskRepository = (*Store)(nil)

// TaskCache stores single tasks keyed by owner and id. Every key carries a
// generation that Invalidate bumps; Fill only stores a task when the
// generation is unchanged since it was read, so a fill racing a write is
// dropped instead of resurrecting stale data.
type TaskCache interface {
	Get(ctx context.Context, ownerID, id int64) (api.Task, bool, error)
	Generation(ctx context.Context, ownerID, id int64) (int64, error)
	Fill(ctx context.Context, task api.Task, generation int64) error
	Invalidate(ctx context.Context, ownerID, id int64) error
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// generationTTL keeps a key's generation well past any in-flight read.
const generationTTL = time.Hour

var errStaleFill = errors.New("task cache generation changed")

// watchClient is the part of *redis.Client the cache needs, including
// optimistic transactions.
type watchClient interface {
	redis.Cmdable
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// RedisTaskCache is a TaskCache backed by Redis string keys with a TTL.
type RedisTaskCache struct {
	client watchClient
	ttl    time.Duration
}

func NewRedisTaskCache(client watchClient, ttl time.Duration) *RedisTaskCache {
	return &RedisTaskCache{client: client, ttl: ttl}
}

func taskCacheKey(ownerID, id int64) string {
	return fmt.Sprintf("task:%d:%d", ownerID, id)
}

func taskGenerationKey(ownerID, id int64) string {
	return taskCacheKey(ownerID, id) + ":gen"
}

func (c *RedisTaskCache) Get(ctx context.Context, ownerID, id int64) (api.Task, bool, error) {
	val, err := c.client.Get(ctx, taskCacheKey(ownerID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return api.Task{}, false, nil
	}
	if err != nil {
		return api.Task{}, false, err
	}

	var task api.Task
	if err := json.Unmarshal(val, &task); err != nil {
		return api.Task{}, false, fmt.Errorf("decode cached task: %w", err)
	}
	// OwnerID is not serialized; the key already scopes it.
	task.OwnerID = ownerID
	return task, true, nil
}

func (c *RedisTaskCache) Generation(ctx context.Context, ownerID, id int64) (int64, error) {
	return readGeneration(ctx, c.client, taskGenerationKey(ownerID, id))
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, client stringGetter, key string) (int64, error) {
	gen, err := client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Fill stores task under WATCH on its generation key. A concurrent
// Invalidate aborts the transaction and the fill is skipped.
func (c *RedisTaskCache) Fill(ctx context.Context, task api.Task, generation int64) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	key := taskCacheKey(task.OwnerID, task.ID)
	genKey := taskGenerationKey(task.OwnerID, task.ID)

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if current != generation {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errStaleFill) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *RedisTaskCache) Invalidate(ctx context.Context, ownerID, id int64) error {
	genKey := taskGenerationKey(ownerID, id)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, taskCacheKey(ownerID, id))
		return nil
	})
	return err
}

// CachedTasks adds a read-through cache for GetTask and invalidates on every
// write. Cache failures are logged and never fail the call.
type CachedTasks struct {
	TaskRepository
	cache  TaskCache
	logger *log.Logger
}

func NewCachedTasks(repo TaskRepository, cache TaskCache, logger *log.Logger) *CachedTasks {
	if logger == nil {
		logger = log.Default()
	}
	return &CachedTasks{TaskRepository: repo, cache: cache, logger: logger}
}

func (c *CachedTasks) GetTask(ctx context.Context, ownerID, id int64) (api.Task, error) {
	key := taskCacheKey(ownerID, id)

	task, ok, err := c.cache.Get(ctx, ownerID, id)
	if err != nil {
		c.logger.Printf("WARN: cache read failed for %s: %v", key, err)
	} else if ok {
		return task, nil
	}

	// Read before the database so a write landing in between invalidates the fill.
	generation, genErr := c.cache.Generation(ctx, ownerID, id)
	if genErr != nil {
		c.logger.Printf("WARN: cache read failed for %s: %v", key, genErr)
	}

	task, err = c.TaskRepository.GetTask(ctx, ownerID, id)
	if err != nil {
		return api.Task{}, err
	}

	if genErr == nil {
		if err := c.cache.Fill(ctx, task, generation); err != nil {
			c.logger.Printf("WARN: cache write failed for %s: %v", key, err)
		}
	}
	return task, nil
}

func (c *CachedTasks) UpdateTask(ctx context.Context, ownerID, id int64, in api.TaskUpdate) (api.Task, error) {
	task, err := c.TaskRepository.UpdateTask(ctx, ownerID, id, in)
	if err == nil {
		c.invalidate(ctx, ownerID, id)
	}
	return task, err
}

func (c *CachedTasks) SetCompletion(ctx context.Context, ownerID, id int64, complete bool) (api.Task, error) {
	task, err := c.TaskRepository.SetCompletion(ctx, ownerID, id, complete)
	if err == nil {
		c.invalidate(ctx, ownerID, id)
	}
	return task, err
}

func (c *CachedTasks) DeleteTask(ctx context.Context, ownerID, id int64) (bool, error) {
	deleted, err := c.TaskRepository.DeleteTask(ctx, ownerID, id)
	if err == nil && deleted {
		c.invalidate(ctx, ownerID, id)
	}
	return deleted, err
}

func (c *CachedTasks) invalidate(ctx context.Context, ownerID, id int64) {
	key := taskCacheKey(ownerID, id)
	if err := c.cache.Invalidate(ctx, ownerID, id); err != nil {
		c.logger.Printf("WARN: Failed to delete the cache key, %s, %v", key, err)
	}
}
