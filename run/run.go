// Package run defines Thread and Task: the two durable entities that own a
// conversation's identity and a single agent invocation's lifecycle.
package run

import "time"

// Status is a Task's position in its forward-only lifecycle lattice.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusRunning       Status = "running"
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCanceled      Status = "canceled"
)

// Terminal reports whether s is one of the lattice's terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// forward maps each status to the set of statuses it may transition to.
// Enforced by TaskStore.SetStatus so a task never moves backward through
// the lattice and terminal states never transition again.
var forward = map[Status]map[Status]bool{
	StatusSubmitted:     {StatusRunning: true, StatusFailed: true, StatusCanceled: true},
	StatusRunning:       {StatusInputRequired: true, StatusCompleted: true, StatusFailed: true, StatusCanceled: true},
	StatusInputRequired: {StatusRunning: true, StatusFailed: true, StatusCanceled: true},
	StatusCompleted:     {},
	StatusFailed:        {},
	StatusCanceled:      {},
}

// CanTransition reports whether moving from `from` to `to` is a legal step
// in the lattice.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	next, ok := forward[from]
	return ok && next[to]
}

type (
	// Thread is a conversation's durable identity: the context a sequence
	// of Tasks accumulates against.
	Thread struct {
		ID           string
		AgentID      string
		UserID       string
		Title        string
		CreatedAt    time.Time
		UpdatedAt    time.Time
		MessageCount int
		LastMessage  string
		Metadata     map[string]string
	}

	// Task is a single agent invocation within a Thread.
	Task struct {
		ID           string
		ThreadID     string
		ParentTaskID string
		Status       Status
		FailureKind  string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
)
