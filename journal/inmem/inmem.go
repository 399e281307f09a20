// Package inmem provides an in-process StepJournal backed by a map of
// slices, one per task. Intended for tests and single-process deployments.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/distrihq/distri/ids"
	"github.com/distrihq/distri/journal"
)

// Journal is an in-memory journal.StepJournal. Safe for concurrent use.
type Journal struct {
	mu    sync.RWMutex
	steps map[string][]journal.MemoryStep
	last  map[string]time.Time
}

// New returns an empty in-memory StepJournal.
func New() *Journal {
	return &Journal{
		steps: make(map[string][]journal.MemoryStep),
		last:  make(map[string]time.Time),
	}
}

func (j *Journal) Append(ctx context.Context, step journal.MemoryStep) (journal.MemoryStep, error) {
	if err := ctx.Err(); err != nil {
		return journal.MemoryStep{}, err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	ts := time.Now()
	if prev, ok := j.last[step.TaskID]; ok && !ts.After(prev) {
		ts = prev.Add(time.Nanosecond)
	}
	step.Timestamp = ts
	if step.ID == "" {
		step.ID = ids.New()
	}
	j.last[step.TaskID] = ts
	j.steps[step.TaskID] = append(j.steps[step.TaskID], step)
	return step, nil
}

func (j *Journal) Load(ctx context.Context, taskID, parentTaskID string, limit int) ([]journal.MemoryStep, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	var out []journal.MemoryStep
	if parentTaskID != "" {
		out = append(out, j.steps[parentTaskID]...)
	}
	out = append(out, j.steps[taskID]...)
	if limit <= 0 || len(out) <= limit {
		return out, nil
	}

	// Trim to the most recent `limit` steps, but always keep Task steps
	// (they anchor the conversation and are never large). The oldest
	// non-Task steps are dropped; append order is kept.
	nonTask := 0
	for _, s := range out {
		if s.Kind != journal.StepTask {
			nonTask++
		}
	}
	drop := min(len(out)-limit, nonTask)
	kept := make([]journal.MemoryStep, 0, len(out)-drop)
	for _, s := range out {
		if drop > 0 && s.Kind != journal.StepTask {
			drop--
			continue
		}
		kept = append(kept, s)
	}
	return kept, nil
}

func (j *Journal) DeleteTask(ctx context.Context, taskID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.steps, taskID)
	delete(j.last, taskID)
	return nil
}
