package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distrihq/distri/distrierr"
)

type fakeJob struct {
	taskID string
	fn     func(ctx context.Context)
}

func (j fakeJob) TaskID() string         { return j.taskID }
func (j fakeJob) Run(ctx context.Context) { j.fn(ctx) }

func TestSubmitRunsJob(t *testing.T) {
	c := New(Options{Workers: 2, QueueCapacity: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	done := make(chan struct{})
	require.NoError(t, c.Submit(fakeJob{taskID: "t1", fn: func(context.Context) { close(done) }}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

func TestSubmitReturnsBusyWhenQueueFull(t *testing.T) {
	c := New(Options{Workers: 1, QueueCapacity: 1})
	block := make(chan struct{})
	// Occupy the sole worker so the queue backs up.
	require.NoError(t, c.Submit(fakeJob{taskID: "t1", fn: func(context.Context) { <-block }}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	// Give the worker a moment to pick up the blocking job.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Submit(fakeJob{taskID: "t2", fn: func(context.Context) {}}))

	err := c.Submit(fakeJob{taskID: "t3", fn: func(context.Context) {}})
	var busy *distrierr.Busy
	require.ErrorAs(t, err, &busy)

	close(block)
	c.Stop()
}

func TestSameTaskJobsAreSerialised(t *testing.T) {
	c := New(Options{Workers: 4, QueueCapacity: 10})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	var active int32
	var sawOverlap int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		job := fakeJob{taskID: "shared", fn: func(context.Context) {
			defer wg.Done()
			if atomic.AddInt32(&active, 1) > 1 {
				atomic.StoreInt32(&sawOverlap, 1)
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}}
		require.NoError(t, c.Submit(job))
	}
	wg.Wait()
	assert.Zero(t, sawOverlap, "jobs for the same task must never run concurrently")
}

func TestDistinctTasksRunInParallel(t *testing.T) {
	c := New(Options{Workers: 4, QueueCapacity: 10})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	var wg sync.WaitGroup
	start := make(chan struct{})
	var concurrent int32
	var maxConcurrent int32
	for i := 0; i < 3; i++ {
		wg.Add(1)
		taskID := string(rune('a' + i))
		job := fakeJob{taskID: taskID, fn: func(context.Context) {
			defer wg.Done()
			<-start
			n := atomic.AddInt32(&concurrent, 1)
			for {
				m := atomic.LoadInt32(&maxConcurrent)
				if n <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
		}}
		require.NoError(t, c.Submit(job))
	}
	close(start)
	wg.Wait()
	assert.Greater(t, atomic.LoadInt32(&maxConcurrent), int32(1), "distinct tasks should overlap")
}

func TestReleaseEvictsTerminalEntry(t *testing.T) {
	c := New(Options{Workers: 1, QueueCapacity: 4})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	done := make(chan struct{})
	require.NoError(t, c.Submit(fakeJob{taskID: "t1", fn: func(context.Context) { close(done) }}))
	<-done
	c.Release("t1")

	require.Eventually(t, func() bool { return c.locks.size() == 0 }, time.Second, time.Millisecond)
}

func TestEvictIdleReclaimsUnusedEntries(t *testing.T) {
	lm := newLockMap()
	e := lm.acquire("t1")
	lm.release("t1", e)
	require.Equal(t, 1, lm.size())

	lm.evictIdle(time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	lm.evictIdle(time.Millisecond)
	assert.Equal(t, 0, lm.size())
}
