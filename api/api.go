// Package api defines the transport-adjacent wire types that an
// out-of-scope HTTP/CLI front end would marshal to and from: the
// JSON-RPC-style Execute request, the Task object returned by
// message/send, and the MemoryStep serialization it embeds. None of these
// types carry behaviour; they are pure data, converted to and from the
// domain types in run and journal at the Orchestrator boundary.
package api

import (
	"encoding/json"
	"time"

	"github.com/distrihq/distri/journal"
	"github.com/distrihq/distri/run"
)

// ExecuteRequest is the params object of a "message/send" or
// "message/stream" JSON-RPC call: the method name itself selects
// Stream (true for message/stream), everything else is carried here.
type ExecuteRequest struct {
	Agent        string            `json:"agent"`
	Message      string            `json:"message"`
	UserID       string            `json:"user_id"`
	ThreadID     string            `json:"context_id,omitempty"`
	ParentTaskID string            `json:"task_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Stream       bool              `json:"-"`
}

// TaskDTO is the wire shape of a Task object: `{ id, thread_id,
// parent_task_id?, status, messages, created_at, updated_at }`.
type TaskDTO struct {
	ID           string          `json:"id"`
	ThreadID     string          `json:"thread_id"`
	ParentTaskID string          `json:"parent_task_id,omitempty"`
	Status       string          `json:"status"`
	FailureKind  string          `json:"failure_kind,omitempty"`
	Messages     []MemoryStepDTO `json:"messages"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// MemoryStepDTO is the wire shape of one MemoryStep: `{ kind, payload,
// timestamp, task_id, parent_task_id? }`.
type MemoryStepDTO struct {
	TaskID       string          `json:"task_id"`
	ParentTaskID string          `json:"parent_task_id,omitempty"`
	Kind         string          `json:"kind"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    time.Time       `json:"timestamp"`
}

// TaskToDTO converts a domain Task plus its replayed steps into the wire
// Task object returned by message/send.
func TaskToDTO(t *run.Task, steps []journal.MemoryStep) TaskDTO {
	return TaskDTO{
		ID:           t.ID,
		ThreadID:     t.ThreadID,
		ParentTaskID: t.ParentTaskID,
		Status:       string(t.Status),
		FailureKind:  t.FailureKind,
		Messages:     StepsToDTOs(steps),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// StepToDTO converts one domain MemoryStep to its wire shape.
func StepToDTO(s journal.MemoryStep) MemoryStepDTO {
	return MemoryStepDTO{
		TaskID:       s.TaskID,
		ParentTaskID: s.ParentTaskID,
		Kind:         string(s.Kind),
		Payload:      s.Payload,
		Timestamp:    s.Timestamp,
	}
}

// StepsToDTOs converts a slice of domain MemorySteps, preserving order.
func StepsToDTOs(steps []journal.MemoryStep) []MemoryStepDTO {
	out := make([]MemoryStepDTO, len(steps))
	for i, s := range steps {
		out[i] = StepToDTO(s)
	}
	return out
}
