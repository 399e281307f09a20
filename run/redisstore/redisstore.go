// Package redisstore provides Redis-backed ThreadStore and TaskStore
// implementations for deployments that need run metadata to survive process
// restarts and be shared across orchestrator replicas.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/distrihq/distri/distrierr"
	"github.com/distrihq/distri/run"
)

const defaultTTL = 7 * 24 * time.Hour

// ThreadStore is a Redis-backed run.ThreadStore. Threads are stored as JSON
// blobs under "distri:thread:{id}" with a rolling TTL refreshed on Touch.
type ThreadStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewThreadStore builds a Redis-backed ThreadStore. ttl <= 0 uses a 7-day
// default.
func NewThreadStore(rdb *redis.Client, ttl time.Duration) *ThreadStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ThreadStore{rdb: rdb, ttl: ttl}
}

func threadKey(id string) string { return fmt.Sprintf("distri:thread:%s", id) }

func (s *ThreadStore) Create(ctx context.Context, t *run.Thread) error {
	data, err := json.Marshal(t)
	if err != nil {
		return &distrierr.Session{Detail: "marshal thread", Cause: err}
	}
	if err := s.rdb.Set(ctx, threadKey(t.ID), data, s.ttl).Err(); err != nil {
		return &distrierr.Session{Detail: "redis set thread", Cause: err}
	}
	return nil
}

func (s *ThreadStore) Get(ctx context.Context, id string) (*run.Thread, error) {
	data, err := s.rdb.Get(ctx, threadKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, &distrierr.NotFound{What: "thread", ID: id}
		}
		return nil, &distrierr.Session{Detail: "redis get thread", Cause: err}
	}
	var t run.Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &distrierr.Session{Detail: "unmarshal thread", Cause: err}
	}
	return &t, nil
}

func (s *ThreadStore) Touch(ctx context.Context, id string, lastMessage string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	t.MessageCount++
	t.LastMessage = lastMessage
	t.UpdatedAt = time.Now()
	return s.Create(ctx, t)
}

func (s *ThreadStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, threadKey(id)).Result()
	if err != nil {
		return &distrierr.Session{Detail: "redis del thread", Cause: err}
	}
	if n == 0 {
		return &distrierr.NotFound{What: "thread", ID: id}
	}
	return nil
}

// TaskStore is a Redis-backed run.TaskStore. Tasks are stored as JSON blobs
// under "distri:task:{id}"; a per-thread set "distri:thread_tasks:{thread_id}"
// tracks membership for ListByThread.
type TaskStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTaskStore builds a Redis-backed TaskStore. ttl <= 0 uses a 7-day default.
func NewTaskStore(rdb *redis.Client, ttl time.Duration) *TaskStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TaskStore{rdb: rdb, ttl: ttl}
}

func taskKey(id string) string            { return fmt.Sprintf("distri:task:%s", id) }
func threadTasksKey(threadID string) string { return fmt.Sprintf("distri:thread_tasks:%s", threadID) }

func (s *TaskStore) Create(ctx context.Context, t *run.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return &distrierr.Session{Detail: "marshal task", Cause: err}
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, taskKey(t.ID), data, s.ttl)
	pipe.SAdd(ctx, threadTasksKey(t.ThreadID), t.ID)
	pipe.Expire(ctx, threadTasksKey(t.ThreadID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return &distrierr.Session{Detail: "redis create task", Cause: err}
	}
	return nil
}

func (s *TaskStore) Get(ctx context.Context, id string) (*run.Task, error) {
	data, err := s.rdb.Get(ctx, taskKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, &distrierr.NotFound{What: "task", ID: id}
		}
		return nil, &distrierr.Session{Detail: "redis get task", Cause: err}
	}
	var t run.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &distrierr.Session{Detail: "unmarshal task", Cause: err}
	}
	return &t, nil
}

func (s *TaskStore) SetStatus(ctx context.Context, id string, status run.Status, failureKind string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return nil
	}
	if !run.CanTransition(t.Status, status) {
		return &distrierr.Session{Detail: "illegal task status transition " + string(t.Status) + " -> " + string(status)}
	}
	t.Status = status
	t.FailureKind = failureKind
	t.UpdatedAt = time.Now()
	data, err := json.Marshal(t)
	if err != nil {
		return &distrierr.Session{Detail: "marshal task", Cause: err}
	}
	if err := s.rdb.Set(ctx, taskKey(id), data, s.ttl).Err(); err != nil {
		return &distrierr.Session{Detail: "redis set task", Cause: err}
	}
	return nil
}

func (s *TaskStore) ListByThread(ctx context.Context, threadID string) ([]*run.Task, error) {
	ids, err := s.rdb.SMembers(ctx, threadTasksKey(threadID)).Result()
	if err != nil {
		return nil, &distrierr.Session{Detail: "redis list thread tasks", Cause: err}
	}
	out := make([]*run.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Get(ctx, id)
		if err != nil {
			if _, ok := err.(*distrierr.NotFound); ok {
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
