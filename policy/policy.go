// Package policy decides which tools stay available to an AgentExecutor's
// planner on each turn and tracks the run's iteration/failure/time caps. The
// executor consults an Engine before every Planning step (start and resume)
// so budget enforcement and circuit breaking live outside planner logic.
package policy

import (
	"context"
	"time"

	"github.com/distrihq/distri/tools"
)

type (
	// Engine evaluates policy constraints ahead of a Planning step and
	// returns the allowlist and updated caps for that turn.
	//
	// Implementations should be fast: the executor calls Decide synchronously
	// before every planner invocation. An error terminates the task.
	Engine interface {
		Decide(ctx context.Context, input Input) (Decision, error)
	}

	// Input groups the information available to a policy decision.
	Input struct {
		// TaskID and ThreadID identify the run being evaluated.
		TaskID   string
		ThreadID string

		// Candidates lists the tools the agent's bindings make available
		// before any policy filtering.
		Candidates []tools.Descriptor

		// RetryHint carries the prior turn's retry guidance, when the
		// preceding Action step ended in a tool failure. Nil otherwise.
		RetryHint *RetryHint

		// Remaining reflects the caps as of the start of this turn.
		Remaining CapsState

		// Labels are arbitrary key/value pairs threaded through from the
		// task's context for label-based routing decisions.
		Labels map[string]string
	}

	// Decision is what the executor applies before the next Planning step.
	Decision struct {
		// AllowedTools is the allowlist for this turn. Empty means the
		// planner must produce a final answer rather than call a tool.
		AllowedTools []tools.Ident

		// Caps carries the caps to enforce for this turn and onward.
		Caps CapsState

		// DisableTools forces the planner toward a final answer regardless
		// of AllowedTools, terminating tool use for the remainder of the
		// task (budget exhaustion, circuit breaking).
		DisableTools bool

		// Labels merge into the task's labels and propagate to subsequent
		// turns and to telemetry.
		Labels map[string]string
	}

	// CapsState tracks the execution budgets the executor enforces. Zero in
	// a Max* field means unlimited.
	CapsState struct {
		MaxIterations                 int
		RemainingIterations           int
		MaxConsecutiveFailures        int
		RemainingConsecutiveFailures  int
		ExpiresAt                     time.Time
	}
)

// RetryReason categorizes why the previous Action step failed, for policies
// that adjust allowlists or caps in response.
type RetryReason string

const (
	RetryReasonInvalidArguments  RetryReason = "invalid_arguments"
	RetryReasonTransportFailure  RetryReason = "transport_failure"
	RetryReasonTimeout           RetryReason = "timeout"
	RetryReasonToolUnavailable   RetryReason = "tool_unavailable"
)

// RetryHint communicates the prior turn's failure to the policy engine, per
// the suggested-cap-adjustment plumbing the executor reads back after a
// recovered tool failure.
type RetryHint struct {
	Reason RetryReason
	Tool   tools.Ident
	// SuggestedCapAdjustment is a signed delta the engine may apply to
	// RemainingConsecutiveFailures beyond the default decrement (e.g. a
	// harsher penalty for a repeated failure on the same tool).
	SuggestedCapAdjustment int
	Message                string
}

// Expired reports whether c's wall-clock deadline has passed. A zero
// ExpiresAt never expires.
func (c CapsState) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// IterationsExhausted reports whether no further iterations are permitted.
func (c CapsState) IterationsExhausted() bool {
	return c.MaxIterations > 0 && c.RemainingIterations <= 0
}

// ConsecutiveFailuresExhausted reports whether the circuit should break.
func (c CapsState) ConsecutiveFailuresExhausted() bool {
	return c.MaxConsecutiveFailures > 0 && c.RemainingConsecutiveFailures <= 0
}
