package run

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/distrihq/distri/distrierr"
)

type (
	// ThreadStore owns Thread records.
	ThreadStore interface {
		Create(ctx context.Context, t *Thread) error
		Get(ctx context.Context, id string) (*Thread, error)
		Touch(ctx context.Context, id string, lastMessage string) error
		Delete(ctx context.Context, id string) error
	}

	// TaskStore owns Task records and enforces the status lattice.
	TaskStore interface {
		Create(ctx context.Context, t *Task) error
		Get(ctx context.Context, id string) (*Task, error)
		SetStatus(ctx context.Context, id string, status Status, failureKind string) error
		ListByThread(ctx context.Context, threadID string) ([]*Task, error)
	}
)

// MemoryThreadStore is an in-memory ThreadStore. Safe for concurrent use.
type MemoryThreadStore struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

// NewMemoryThreadStore returns an empty in-memory ThreadStore.
func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{threads: make(map[string]*Thread)}
}

func (s *MemoryThreadStore) Create(ctx context.Context, t *Thread) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.threads[t.ID] = &cp
	return nil
}

func (s *MemoryThreadStore) Get(ctx context.Context, id string) (*Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return nil, &distrierr.NotFound{What: "thread", ID: id}
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryThreadStore) Touch(ctx context.Context, id string, lastMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return &distrierr.NotFound{What: "thread", ID: id}
	}
	t.MessageCount++
	t.LastMessage = lastMessage
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryThreadStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[id]; !ok {
		return &distrierr.NotFound{What: "thread", ID: id}
	}
	delete(s.threads, id)
	return nil
}

// MemoryTaskStore is an in-memory TaskStore. Safe for concurrent use.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewMemoryTaskStore returns an empty in-memory TaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]*Task)}
}

func (s *MemoryTaskStore) Create(ctx context.Context, t *Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *MemoryTaskStore) Get(ctx context.Context, id string) (*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, &distrierr.NotFound{What: "task", ID: id}
	}
	cp := *t
	return &cp, nil
}

// SetStatus applies a status transition, rejecting any move that is not
// forward through the lattice (invariant 2).
func (s *MemoryTaskStore) SetStatus(ctx context.Context, id string, status Status, failureKind string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return &distrierr.NotFound{What: "task", ID: id}
	}
	if t.Status.Terminal() {
		return nil
	}
	if !CanTransition(t.Status, status) {
		return &distrierr.Session{Detail: "illegal task status transition " + string(t.Status) + " -> " + string(status)}
	}
	t.Status = status
	t.FailureKind = failureKind
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryTaskStore) ListByThread(ctx context.Context, threadID string) ([]*Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Task
	for _, t := range s.tasks {
		if t.ThreadID == threadID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
