package coordinator

import (
	"sync"
	"time"
)

// lockMap hands out a per-task mutex so the worker pool serialises messages
// for a given task while leaving unrelated tasks fully parallel. Entries are
// reclaimed either immediately (once marked terminal with no job holding
// it) or by the periodic idle sweep as a safety net for tasks that never
// call markTerminal.
type lockMap struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu       sync.Mutex
	refs     int
	terminal bool
	idleSince time.Time
}

func newLockMap() *lockMap {
	return &lockMap{entries: make(map[string]*lockEntry)}
}

// acquire returns taskID's entry, creating it on first use, and locks it.
// The caller must pass the same entry to release once its Job completes.
func (l *lockMap) acquire(taskID string) *lockEntry {
	l.mu.Lock()
	e, ok := l.entries[taskID]
	if !ok {
		e = &lockEntry{}
		l.entries[taskID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return e
}

// release unlocks entry and, if taskID was marked terminal and no other
// worker holds a reference, evicts it immediately.
func (l *lockMap) release(taskID string, e *lockEntry) {
	e.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	e.idleSince = time.Now()
	if e.refs == 0 && e.terminal {
		delete(l.entries, taskID)
	}
}

// markTerminal flags taskID's entry for eviction. If no worker currently
// holds it, it is removed right away; otherwise the next release evicts it.
func (l *lockMap) markTerminal(taskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[taskID]
	if !ok {
		return
	}
	e.terminal = true
	if e.refs == 0 {
		delete(l.entries, taskID)
	}
}

// evictIdle removes entries that have sat unused (refs == 0) for longer
// than maxIdle, catching tasks whose terminal state was never reported.
func (l *lockMap) evictIdle(maxIdle time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for taskID, e := range l.entries {
		if e.refs == 0 && !e.idleSince.IsZero() && now.Sub(e.idleSince) > maxIdle {
			delete(l.entries, taskID)
		}
	}
}

// size reports the number of tracked entries, for tests.
func (l *lockMap) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
