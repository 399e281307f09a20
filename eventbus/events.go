// Package eventbus implements EventBus: a per-(thread, task) topic that
// fans events out to subscribers, each over its own bounded buffer, so a
// slow subscriber loses its oldest events rather than blocking the executor.
// Events published before a subscriber joins are not replayed to it.
package eventbus

import "time"

// EventType enumerates the event kinds a task's topic can carry.
type EventType string

const (
	TaskCreated        EventType = "task_created"
	TaskRunning        EventType = "task_running"
	TaskCompleted      EventType = "task_completed"
	TaskFailed         EventType = "task_failed"
	TaskCancelled      EventType = "task_cancelled"
	InputRequired      EventType = "input_required"
	TextMessageStart   EventType = "text_message_start"
	TextMessageContent EventType = "text_message_content"
	TextMessageEnd     EventType = "text_message_end"
	ToolCallStart      EventType = "tool_call_start"
	ToolCallArgs       EventType = "tool_call_args"
	ToolCallResult     EventType = "tool_call_result"
	StepRecorded       EventType = "step_recorded"
	// Lagged is synthesized by the bus itself, never published by a
	// caller: it replaces events a slow subscriber could not keep up with.
	Lagged EventType = "lagged"
)

// Event is the interface every published event satisfies.
type Event interface {
	Type() EventType
	TaskID() string
	Timestamp() time.Time
}

type base struct {
	taskID string
	ts     time.Time
}

func (b base) TaskID() string      { return b.taskID }
func (b base) Timestamp() time.Time { return b.ts }

func newBase(taskID string) base { return base{taskID: taskID, ts: time.Now()} }

type (
	// TaskCreatedEvent fires once when the Orchestrator creates a Task.
	TaskCreatedEvent struct {
		base
		ThreadID string
		AgentID  string
	}

	// TaskRunningEvent fires when a worker picks up the task.
	TaskRunningEvent struct{ base }

	// TaskCompletedEvent fires when the task reaches StatusCompleted.
	TaskCompletedEvent struct{ base }

	// TaskFailedEvent fires when the task reaches StatusFailed.
	TaskFailedEvent struct {
		base
		Kind string
	}

	// TaskCancelledEvent fires when the task reaches StatusCanceled.
	TaskCancelledEvent struct{ base }

	// InputRequiredEvent fires when a tool suspends the task awaiting a
	// user reply.
	InputRequiredEvent struct {
		base
		Prompt string
	}

	// TextMessageStartEvent fires when the model begins streaming a new
	// text message.
	TextMessageStartEvent struct {
		base
		MessageID string
		Role      string
	}

	// TextMessageContentEvent carries one streamed text delta.
	TextMessageContentEvent struct {
		base
		MessageID string
		Delta     string
	}

	// TextMessageEndEvent fires when a streamed text message completes.
	TextMessageEndEvent struct {
		base
		MessageID string
	}

	// ToolCallStartEvent fires when the executor dispatches a tool call.
	ToolCallStartEvent struct {
		base
		ToolCallID string
		ToolName   string
	}

	// ToolCallArgsEvent carries one streamed delta of a tool call's
	// arguments.
	ToolCallArgsEvent struct {
		base
		ToolCallID string
		Delta      string
	}

	// ToolCallResultEvent fires when a tool call completes, carrying
	// either its result parts or an error string (never both).
	ToolCallResultEvent struct {
		base
		ToolCallID string
		Parts      []byte
		Error      string
	}

	// StepRecordedEvent fires whenever a MemoryStep is appended to the
	// journal.
	StepRecordedEvent struct {
		base
		Kind string
	}

	// LaggedEvent replaces one or more events a subscriber missed because
	// its buffer filled faster than it drained.
	LaggedEvent struct {
		base
		NMissed int
	}
)

func (e *TaskCreatedEvent) Type() EventType        { return TaskCreated }
func (e *TaskRunningEvent) Type() EventType        { return TaskRunning }
func (e *TaskCompletedEvent) Type() EventType      { return TaskCompleted }
func (e *TaskFailedEvent) Type() EventType         { return TaskFailed }
func (e *TaskCancelledEvent) Type() EventType      { return TaskCancelled }
func (e *InputRequiredEvent) Type() EventType      { return InputRequired }
func (e *TextMessageStartEvent) Type() EventType   { return TextMessageStart }
func (e *TextMessageContentEvent) Type() EventType { return TextMessageContent }
func (e *TextMessageEndEvent) Type() EventType     { return TextMessageEnd }
func (e *ToolCallStartEvent) Type() EventType      { return ToolCallStart }
func (e *ToolCallArgsEvent) Type() EventType       { return ToolCallArgs }
func (e *ToolCallResultEvent) Type() EventType     { return ToolCallResult }
func (e *StepRecordedEvent) Type() EventType       { return StepRecorded }
func (e *LaggedEvent) Type() EventType             { return Lagged }

// NewTaskCreatedEvent constructs a TaskCreatedEvent for taskID.
func NewTaskCreatedEvent(taskID, threadID, agentID string) *TaskCreatedEvent {
	return &TaskCreatedEvent{base: newBase(taskID), ThreadID: threadID, AgentID: agentID}
}

// NewTaskFailedEvent constructs a TaskFailedEvent carrying the distrierr Kind
// that terminated the task.
func NewTaskFailedEvent(taskID, kind string) *TaskFailedEvent {
	return &TaskFailedEvent{base: newBase(taskID), Kind: kind}
}

// NewInputRequiredEvent constructs an InputRequiredEvent.
func NewInputRequiredEvent(taskID, prompt string) *InputRequiredEvent {
	return &InputRequiredEvent{base: newBase(taskID), Prompt: prompt}
}

// NewTextMessageStartEvent constructs a TextMessageStartEvent.
func NewTextMessageStartEvent(taskID, messageID, role string) *TextMessageStartEvent {
	return &TextMessageStartEvent{base: newBase(taskID), MessageID: messageID, Role: role}
}

// NewTextMessageContentEvent constructs a TextMessageContentEvent.
func NewTextMessageContentEvent(taskID, messageID, delta string) *TextMessageContentEvent {
	return &TextMessageContentEvent{base: newBase(taskID), MessageID: messageID, Delta: delta}
}

// NewTextMessageEndEvent constructs a TextMessageEndEvent.
func NewTextMessageEndEvent(taskID, messageID string) *TextMessageEndEvent {
	return &TextMessageEndEvent{base: newBase(taskID), MessageID: messageID}
}

// NewToolCallStartEvent constructs a ToolCallStartEvent.
func NewToolCallStartEvent(taskID, toolCallID, toolName string) *ToolCallStartEvent {
	return &ToolCallStartEvent{base: newBase(taskID), ToolCallID: toolCallID, ToolName: toolName}
}

// NewToolCallArgsEvent constructs a ToolCallArgsEvent.
func NewToolCallArgsEvent(taskID, toolCallID, delta string) *ToolCallArgsEvent {
	return &ToolCallArgsEvent{base: newBase(taskID), ToolCallID: toolCallID, Delta: delta}
}

// NewToolCallResultEvent constructs a ToolCallResultEvent.
func NewToolCallResultEvent(taskID, toolCallID string, parts []byte, errMsg string) *ToolCallResultEvent {
	return &ToolCallResultEvent{base: newBase(taskID), ToolCallID: toolCallID, Parts: parts, Error: errMsg}
}

// NewStepRecordedEvent constructs a StepRecordedEvent.
func NewStepRecordedEvent(taskID, kind string) *StepRecordedEvent {
	return &StepRecordedEvent{base: newBase(taskID), Kind: kind}
}

// NewTaskRunningEvent constructs a TaskRunningEvent.
func NewTaskRunningEvent(taskID string) *TaskRunningEvent {
	return &TaskRunningEvent{base: newBase(taskID)}
}

// NewTaskCompletedEvent constructs a TaskCompletedEvent.
func NewTaskCompletedEvent(taskID string) *TaskCompletedEvent {
	return &TaskCompletedEvent{base: newBase(taskID)}
}

// NewTaskCancelledEvent constructs a TaskCancelledEvent.
func NewTaskCancelledEvent(taskID string) *TaskCancelledEvent {
	return &TaskCancelledEvent{base: newBase(taskID)}
}
