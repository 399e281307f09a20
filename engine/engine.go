// Package engine abstracts durable execution behind one interface with an
// in-memory backend (tests, single-process deployments) and a
// Temporal-backed backend (replay-safe production execution), matching the
// teacher's engine/inmem+temporal split.
package engine

import (
	"context"
	"time"

	"github.com/distrihq/distri/telemetry"
)

type (
	// Engine registers and starts durable task executions behind a
	// backend-neutral interface. The orchestrator and executor packages do
	// not use it; they run tasks in-process through the coordinator.
	Engine interface {
		// RegisterWorkflow registers the task-loop workflow under name. Must
		// be called once during startup before StartWorkflow is used.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error
		// RegisterActivity registers an activity (plan turn, tool call,
		// journal append) invoked from within a workflow.
		RegisterActivity(ctx context.Context, def ActivityDefinition) error
		// StartWorkflow launches a task's execution loop and returns a
		// handle to observe or cancel it.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds the task-loop handler to a logical name.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is the task-loop entry point. Implementations must be
	// deterministic: the same WorkflowContext and input must reproduce the
	// same sequence of ExecuteActivity calls on Temporal replay.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to the task loop. It wraps
	// engine-specific contexts (Temporal's workflow.Context, or a plain Go
	// context for the in-memory engine) behind one API.
	//
	// WorkflowContext is bound to a single task execution and must not be
	// shared across goroutines; activity and signal operations are
	// serialized by the underlying engine.
	WorkflowContext interface {
		// Context returns the Go context to use for activity execution and
		// cancellation propagation.
		Context() context.Context
		// TaskID returns the task this execution is bound to.
		TaskID() string
		// RunID returns the engine-assigned execution identifier.
		RunID() string

		// ExecuteActivity runs an activity synchronously and decodes its
		// result into result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
		// ExecuteActivityAsync schedules an activity without blocking,
		// enabling concurrent tool dispatch within one Action step.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)

		// SignalChannel returns the channel carrying external signals for
		// name (e.g. a resumed InputRequired reply).
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns the engine's replay-safe clock.
		Now() time.Time
	}

	// Future is a pending activity result from ExecuteActivityAsync, used
	// to dispatch several tool calls from one step concurrently and join on
	// their results.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc performs a side-effecting step (LLM call, tool
	// dispatch, journal append, artifact I/O) outside the deterministic
	// workflow boundary.
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior for an activity.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a task's execution.
	WorkflowStartRequest struct {
		// ID is the task ID; must be unique within the engine.
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest schedules one activity invocation from within a
	// workflow.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle lets callers observe or control a running task
	// execution.
	WorkflowHandle interface {
		// Wait blocks until the execution completes, decoding its result.
		Wait(ctx context.Context, result any) error
		// Signal delivers an external event (e.g. InputRequired reply).
		Signal(ctx context.Context, name string, payload any) error
		// Cancel requests cooperative cancellation.
		Cancel(ctx context.Context) error
	}

	// RetryPolicy is shared retry configuration for workflows and
	// activities. Zero fields mean "use the engine's default".
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes engine-agnostic signal delivery to workflow
	// code, used for resuming a task suspended on InputRequired.
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
